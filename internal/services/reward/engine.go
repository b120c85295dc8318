package reward

import (
	"fmt"
	"sort"

	"github.com/mcoot/dicefunnel/internal/dependencies/random"
	"github.com/mcoot/dicefunnel/internal/model"
)

// Tier bounds
const (
	MinTier = 1
	MaxTier = 6
)

// Config holds the weighted distribution and the tier to discount table
type Config struct {
	// Weights maps tier to relative weight. Tiers with zero weight never win.
	Weights map[int]int
	// Percentages maps tier to discount percentage
	Percentages map[int]int
	// CodePrefix starts every locally generated reward code
	CodePrefix string
}

// DefaultConfig returns the promotional configuration: every roll lands on 6
func DefaultConfig() Config {
	return Config{
		Weights:     map[int]int{6: 100},
		Percentages: map[int]int{1: 10, 2: 15, 3: 20, 4: 25, 5: 30, 6: 100},
		CodePrefix:  "DICE",
	}
}

// Validate checks that the configuration can produce a draw
func (c Config) Validate() error {
	positive := 0
	for tier, w := range c.Weights {
		if tier < MinTier || tier > MaxTier {
			return model.NewValidationError("reward.weights", fmt.Sprintf("tier %d out of range", tier))
		}
		if w < 0 {
			return model.NewValidationError("reward.weights", fmt.Sprintf("tier %d has negative weight", tier))
		}
		if w == 0 {
			continue
		}
		positive++
		pct, ok := c.Percentages[tier]
		if !ok {
			return model.NewValidationError("reward.percentages", fmt.Sprintf("tier %d has no percentage", tier))
		}
		if pct <= 0 || pct > 100 {
			return model.NewValidationError("reward.percentages", fmt.Sprintf("tier %d percentage %d out of range", tier, pct))
		}
	}
	if positive == 0 {
		return model.NewValidationError("reward.weights", "at least one tier needs a positive weight")
	}
	if c.CodePrefix == "" {
		return model.NewValidationError("reward.code_prefix", "must not be empty")
	}
	return nil
}

type bucket struct {
	tier       int
	cumulative int
}

// Engine draws weighted reward tiers
type Engine struct {
	cfg     Config
	random  random.Random
	buckets []bucket
	total   int
}

// New creates an Engine after validating cfg
func New(cfg Config, random random.Random) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tiers := make([]int, 0, len(cfg.Weights))
	for tier, w := range cfg.Weights {
		if w > 0 {
			tiers = append(tiers, tier)
		}
	}
	sort.Ints(tiers)

	e := &Engine{cfg: cfg, random: random}
	for _, tier := range tiers {
		e.total += cfg.Weights[tier]
		e.buckets = append(e.buckets, bucket{tier: tier, cumulative: e.total})
	}
	return e, nil
}

// Draw returns a tier. A draw landing exactly on a cumulative boundary
// belongs to the lower bucket.
func (e *Engine) Draw() int {
	draw := e.random.Float64() * float64(e.total)
	for _, b := range e.buckets {
		if draw <= float64(b.cumulative) {
			return b.tier
		}
	}
	return e.buckets[len(e.buckets)-1].tier
}

// Percentage returns the discount percentage for tier
func (e *Engine) Percentage(tier int) (int, error) {
	pct, ok := e.cfg.Percentages[tier]
	if !ok || tier < MinTier || tier > MaxTier {
		return 0, model.ErrInvalidTier
	}
	return pct, nil
}

// CodePrefix returns the prefix for locally generated codes
func (e *Engine) CodePrefix() string {
	return e.cfg.CodePrefix
}

// Probabilities returns the configured probability of each weighted tier
func (e *Engine) Probabilities() map[int]float64 {
	probs := make(map[int]float64, len(e.buckets))
	for _, b := range e.buckets {
		probs[b.tier] = float64(e.cfg.Weights[b.tier]) / float64(e.total)
	}
	return probs
}

// Distribution draws n times and counts the outcomes per tier
func (e *Engine) Distribution(n int) map[int]int {
	counts := make(map[int]int, MaxTier)
	for i := 0; i < n; i++ {
		counts[e.Draw()]++
	}
	return counts
}
