// Package assignment picks the agent for an unassigned ticket.
package assignment

import (
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Candidate is an eligible agent together with its active load.
type Candidate struct {
	Agent domain.Agent
	Load  int
}

// EligibleCandidates keeps active agents and managers in input order.
func EligibleCandidates(agents []domain.Agent) []domain.Agent {
	out := make([]domain.Agent, 0, len(agents))
	for i := range agents {
		if agents[i].Eligible() {
			out = append(out, agents[i])
		}
	}
	return out
}

// SelectAgent returns the eligible candidate with the smallest active load.
// Ties go to the earliest candidate; agents missing from load count as zero.
// ok is false when no candidate is eligible.
func SelectAgent(candidates []domain.Agent, activeLoad map[string]int) (domain.Agent, bool) {
	var (
		best    domain.Agent
		bestIdx = -1
		minLoad int
	)
	for i := range candidates {
		if !candidates[i].Eligible() {
			continue
		}
		load := activeLoad[candidates[i].ID]
		if bestIdx == -1 || load < minLoad {
			best, bestIdx, minLoad = candidates[i], i, load
		}
	}
	return best, bestIdx != -1
}

// Rank orders eligible candidates by load, keeping input order on ties.
func Rank(candidates []domain.Agent, activeLoad map[string]int) []Candidate {
	eligible := EligibleCandidates(candidates)
	ranked := make([]Candidate, 0, len(eligible))
	for _, agent := range eligible {
		c := Candidate{Agent: agent, Load: activeLoad[agent.ID]}
		pos := len(ranked)
		for pos > 0 && ranked[pos-1].Load > c.Load {
			pos--
		}
		ranked = append(ranked, Candidate{})
		copy(ranked[pos+1:], ranked[pos:])
		ranked[pos] = c
	}
	return ranked
}
