package agentmetrics

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Property: incremental folding matches the batch mean, whatever the order.
func TestAccumulateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("average equals mean of positive response times", prop.ForAll(
		func(times []int) bool {
			var (
				m     domain.AgentMetrics
				sum   float64
				count int
			)
			for _, minutes := range times {
				m = Accumulate(m, Closure{ResponseTime: float64(minutes)})
				if minutes > 0 {
					sum += float64(minutes)
					count++
				}
			}
			if m.TicketsClosed != int64(len(times)) || m.ResponseCount != int64(count) {
				return false
			}
			if count == 0 {
				return m.AvgResponseTime == 0
			}
			return math.Abs(m.AvgResponseTime-sum/float64(count)) < 1e-6
		},
		gen.SliceOf(gen.IntRange(0, 600)),
	))

	properties.Property("csat equals mean of ratings and stays in range", prop.ForAll(
		func(ratings []int) bool {
			var (
				m   domain.AgentMetrics
				sum float64
			)
			for _, r := range ratings {
				m = AccumulateRating(m, r)
				sum += float64(r)
			}
			if m.TotalRatings != int64(len(ratings)) {
				return false
			}
			if len(ratings) == 0 {
				return m.CSATScore == 0
			}
			return math.Abs(m.CSATScore-sum/float64(len(ratings))) < 1e-6 && m.CSATScore >= 1 && m.CSATScore <= 5
		},
		gen.SliceOf(gen.IntRange(1, 5)),
	))

	properties.TestingRun(t)
}
