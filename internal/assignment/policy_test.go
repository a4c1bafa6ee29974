package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func agent(id string, role domain.Role, active bool) domain.Agent {
	return domain.Agent{ID: id, Name: id, Role: role, IsActive: active}
}

func TestSelectAgentPicksMinimumLoad(t *testing.T) {
	candidates := []domain.Agent{
		agent("a", domain.RoleAgent, true),
		agent("b", domain.RoleAgent, true),
		agent("c", domain.RoleManager, true),
	}
	got, ok := SelectAgent(candidates, map[string]int{"a": 3, "b": 1, "c": 2})
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)
}

func TestSelectAgentTieBreaksByInputOrder(t *testing.T) {
	candidates := []domain.Agent{
		agent("x", domain.RoleAgent, true),
		agent("y", domain.RoleAgent, true),
		agent("z", domain.RoleAgent, true),
	}
	got, ok := SelectAgent(candidates, map[string]int{"x": 2, "y": 1, "z": 1})
	require.True(t, ok)
	assert.Equal(t, "y", got.ID)

	got, ok = SelectAgent(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)
}

func TestSelectAgentSkipsIneligible(t *testing.T) {
	candidates := []domain.Agent{
		agent("inactive", domain.RoleAgent, false),
		agent("customer", domain.RoleCustomer, true),
		agent("busy", domain.RoleManager, true),
	}
	got, ok := SelectAgent(candidates, map[string]int{"busy": 9})
	require.True(t, ok)
	assert.Equal(t, "busy", got.ID)
}

func TestSelectAgentEmpty(t *testing.T) {
	_, ok := SelectAgent(nil, nil)
	assert.False(t, ok)

	_, ok = SelectAgent([]domain.Agent{agent("off", domain.RoleAgent, false)}, nil)
	assert.False(t, ok)
}

func TestRank(t *testing.T) {
	candidates := []domain.Agent{
		agent("a", domain.RoleAgent, true),
		agent("b", domain.RoleAgent, true),
		agent("c", domain.RoleAgent, false),
		agent("d", domain.RoleAgent, true),
	}
	ranked := Rank(candidates, map[string]int{"a": 2, "b": 0, "d": 0})
	ids := make([]string, 0, len(ranked))
	for _, c := range ranked {
		ids = append(ids, c.Agent.ID)
	}
	assert.Equal(t, []string{"b", "d", "a"}, ids)
}
