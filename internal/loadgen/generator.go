package loadgen

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/irr/internal/domain/cashflow"
)

// Generation ranges.
const (
	minRate      = -0.5
	maxRate      = 2.0
	minInflows   = 1
	maxInflows   = 12
	maxGapDays   = 400
	minAmount    = 10.0
	amountRange  = 990.0
	daysPerYear  = 365.0
	anchorYear   = 2000
	anchorYearsN = 25
)

// Generator builds flows whose IRR is known. Each flow is one outlay on its
// earliest date followed by inflows; the outlay is the present value of the
// inflows at the chosen rate, so the rate is the only positive-x root.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a deterministic generator for seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns a new flow with a fresh UUID.
func (g *Generator) Next() Flow {
	rate := minRate + g.rnd.Float64()*(maxRate-minRate)
	anchor := time.Date(anchorYear+g.rnd.IntN(anchorYearsN), time.Month(1+g.rnd.IntN(12)), 1+g.rnd.IntN(28), 0, 0, 0, 0, time.UTC)

	flow := make(map[string]float64)
	outlay := 0.0
	day := anchor
	for i, n := 0, minInflows+g.rnd.IntN(maxInflows); i < n; i++ {
		day = day.AddDate(0, 0, 1+g.rnd.IntN(maxGapDays))
		amount := minAmount + g.rnd.Float64()*amountRange
		flow[day.Format(cashflow.DateLayout)] = amount
		t := float64(cashflow.ElapsedDays(anchor, day)) / daysPerYear
		outlay += amount * math.Pow(1+rate, -t)
	}
	flow[anchor.Format(cashflow.DateLayout)] = -outlay

	return Flow{ID: uuid.NewString(), Rate: rate, Cashflow: flow}
}

// Generate returns n flows.
func (g *Generator) Generate(n int) []Flow {
	flows := make([]Flow, n)
	for i := range flows {
		flows[i] = g.Next()
	}
	return flows
}
