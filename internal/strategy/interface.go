// Package strategy holds the entry-signal boundary and the reference top-of-book strategy.
package strategy

import (
	"repricer_go/internal/domain"
	"repricer_go/internal/market"
)

// Strategy proposes entry intents from a market snapshot.
// It is called synchronously by the pipeline and must not retain the snapshot.
type Strategy interface {
	Decide(snap market.Snapshot) domain.Decision
}

// Func adapts a plain function to Strategy.
type Func func(snap market.Snapshot) domain.Decision

func (f Func) Decide(snap market.Snapshot) domain.Decision { return f(snap) }
