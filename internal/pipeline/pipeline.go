// Package pipeline is the per-event composition root: route the event, guard,
// close what must be closed, otherwise enter, then publish.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/engine"
	"repricer_go/internal/execution"
	"repricer_go/internal/exit"
	"repricer_go/internal/infra"
	"repricer_go/internal/market"
	"repricer_go/internal/risk"
	"repricer_go/internal/service"
	"repricer_go/internal/strategy"
)

// Guard names reported in Step.Blocked and metrics.
const (
	GuardStale  = "stale"
	GuardRegime = "regime"
)

// Config holds the pipeline guards.
type Config struct {
	MaxDataAge     time.Duration
	HeartbeatEvery int
}

// Deps are the collaborators of the pipeline.
// Orchestrator, Gate, Ledger and Exits are required; the rest may be nil.
type Deps struct {
	Orchestrator *engine.Orchestrator
	Gate         *risk.Gate
	Ledger       *execution.Ledger
	Exits        *exit.Policy
	Strategy     strategy.Strategy
	Journal      domain.Journal
	View         *service.SnapshotService
	Metrics      *infra.Metrics
}

// Step is the outcome of processing one event.
type Step struct {
	MarketID domain.MarketID
	Snapshot market.Snapshot
	Evicted  bool
	Blocked  string // empty when trading was allowed
	Exits    []domain.OrderIntent
	Entries  []domain.OrderIntent
	Rejected []risk.Rejection
	Fills    []execution.Fill
	Notes    string
}

// Pipeline processes events for all markets. It is driven by a single
// goroutine (the sequencer); only the ledger and view are shared with readers.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	steps      uint64
	signatures map[domain.MarketID]string
}

// New creates a pipeline.
func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		now:        domain.Now,
		signatures: make(map[domain.MarketID]string),
	}
}

// WithClock replaces the wall clock used by Handle. Intended for replay and tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Handle implements engine.Handler.
func (p *Pipeline) Handle(ctx context.Context, ev domain.MarketEvent) {
	if _, err := p.Process(ctx, ev, p.now()); err != nil {
		if errors.Is(err, domain.ErrOrderingViolation) {
			return // already logged and counted
		}
		p.logger.Error("Step failed",
			slog.String("market", string(ev.MarketID)),
			slog.Int64("seq", ev.Seq),
			slog.Any("error", err),
		)
	}
}

// Process runs one event through the whole pipeline at time now.
//
// An ordering violation drops the event and is returned. A stale or
// non-executable market returns a Step with Blocked set and no error.
// Exits take precedence: when any close fires, the strategy is not consulted.
func (p *Pipeline) Process(ctx context.Context, ev domain.MarketEvent, now time.Time) (Step, error) {
	start := time.Now()
	id := ev.MarketID

	out, err := p.deps.Orchestrator.Apply(ev)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, domain.ErrOrderingViolation) {
			reason = "ordering"
			p.logger.Warn("Dropped out-of-order event",
				slog.String("market", string(id)),
				slog.Int64("seq", ev.Seq),
				slog.Any("error", err),
			)
		}
		p.deps.Metrics.RecordRejectedEvent(reason)
		return Step{MarketID: id}, err
	}

	step := Step{MarketID: id, Snapshot: out.Snapshot}
	defer func() {
		p.heartbeat(step)
		p.deps.Metrics.RecordStep(time.Since(start))
		p.deps.Metrics.SetActiveMarkets(p.deps.Orchestrator.Len())
	}()

	if out.Evicted {
		step.Evicted = true
		p.evict(ctx, out.Snapshot, now)
		return step, nil
	}

	st, _ := p.deps.Orchestrator.Get(id)
	if err := st.AssertFresh(p.cfg.MaxDataAge, now); err != nil {
		p.block(&step, GuardStale, err)
		p.publish(step, now)
		return step, nil
	}
	if !st.CanExecute(now) {
		p.block(&step, GuardRegime, st.AssertSafeToExecute(now))
		p.publish(step, now)
		return step, nil
	}

	positions := p.deps.Ledger.MarketPositions(id)
	if closes := p.deps.Exits.DecideCloses(id, positions, out.Snapshot.Books); len(closes) > 0 {
		if err := p.execute(ctx, st, &step, closes, "exit", now); err != nil {
			return step, err
		}
		step.Notes = "exit"
	} else if p.deps.Strategy != nil {
		decision := p.deps.Strategy.Decide(out.Snapshot)
		step.Notes = decision.Notes
		entries := suppressHeld(decision.Intents, positions)
		if err := p.execute(ctx, st, &step, entries, "entry", now); err != nil {
			return step, err
		}
	}

	p.logIntents(step)
	p.publish(step, now)
	return step, nil
}

// execute risk-checks and applies intents atomically against the ledger.
func (p *Pipeline) execute(ctx context.Context, st *market.State, step *Step, intents []domain.OrderIntent, source string, now time.Time) error {
	if len(intents) == 0 {
		return nil
	}
	if err := st.AssertSafeToExecute(now); err != nil {
		return fmt.Errorf("execute %s: %w", source, err)
	}

	f := &reviewFilter{gate: p.deps.Gate}
	fills := p.deps.Ledger.Submit(f, intents, now)

	for _, r := range f.rejected {
		p.logger.Debug("Intent rejected by risk gate",
			slog.String("key", r.Intent.Key().String()),
			slog.String("side", string(r.Intent.Side)),
			slog.String("size", r.Intent.Size.String()),
			slog.String("reason", string(r.Reason)),
		)
		p.deps.Metrics.RecordRejection(string(r.Reason))
	}
	p.deps.Metrics.RecordIntents(source, len(f.accepted))
	p.deps.Metrics.RecordFills(len(fills))

	if source == "exit" {
		step.Exits = append(step.Exits, f.accepted...)
	} else {
		step.Entries = append(step.Entries, f.accepted...)
	}
	step.Rejected = append(step.Rejected, f.rejected...)
	step.Fills = append(step.Fills, fills...)

	p.journalFills(ctx, fills)
	return nil
}

// reviewFilter adapts risk.Gate to execution.IntentFilter and keeps the review.
type reviewFilter struct {
	gate     *risk.Gate
	accepted []domain.OrderIntent
	rejected []risk.Rejection
}

func (f *reviewFilter) Filter(intents []domain.OrderIntent, positions map[domain.PositionKey]domain.Position) []domain.OrderIntent {
	r := f.gate.Review(intents, positions)
	f.accepted, f.rejected = r.Accepted, r.Rejected
	return r.Accepted
}

// suppressHeld drops entries on selections that already carry a position.
func suppressHeld(intents []domain.OrderIntent, positions map[domain.PositionKey]domain.Position) []domain.OrderIntent {
	out := make([]domain.OrderIntent, 0, len(intents))
	for _, it := range intents {
		if pos, ok := positions[it.Key()]; ok && !pos.IsFlat() {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (p *Pipeline) block(step *Step, guard string, err error) {
	step.Blocked = guard
	p.deps.Metrics.RecordGuardBlock(guard)
	p.logger.Debug("Trading blocked",
		slog.String("market", string(step.MarketID)),
		slog.String("guard", guard),
		slog.String("regime", step.Snapshot.Regime.String()),
		slog.Any("error", err),
	)
}

// evict settles the market's positions and records the final state.
func (p *Pipeline) evict(ctx context.Context, final market.Snapshot, now time.Time) {
	delete(p.signatures, final.MarketID)
	p.deps.Metrics.RecordEviction()

	settled := make(map[string]domain.Position)
	for k, pos := range p.deps.Ledger.Settle(final.MarketID) {
		settled[k.String()] = pos
	}
	p.logger.Info("Market closed and evicted",
		slog.String("market", string(final.MarketID)),
		slog.Int64("last_seq", final.LastSeq),
		slog.Int("selections", len(final.Books)),
		slog.Any("settled", settled),
	)

	if p.deps.View != nil {
		p.deps.View.Evict(final, settled, now)
	}
	if p.deps.Journal == nil {
		return
	}

	raw, err := json.Marshal(final)
	if err != nil {
		p.logger.Error("Failed to encode final snapshot", slog.Any("error", err))
		return
	}
	rawPositions, err := json.Marshal(settled)
	if err != nil {
		p.logger.Error("Failed to encode settled positions", slog.Any("error", err))
		return
	}
	rec := &domain.ClosedMarketRecord{
		MarketID:   string(final.MarketID),
		ClosedAt:   now,
		LastSeq:    final.LastSeq,
		Regime:     final.Regime.String(),
		Selections: len(final.Books),
		Snapshot:   string(raw),
		Positions:  string(rawPositions),
	}
	if err := p.deps.Journal.SaveClosedMarket(ctx, rec); err != nil {
		p.deps.Metrics.RecordJournalError()
		p.logger.Error("Failed to journal closed market",
			slog.String("market", rec.MarketID),
			slog.Any("error", err),
		)
	}
}

func (p *Pipeline) journalFills(ctx context.Context, fills []execution.Fill) {
	if p.deps.Journal == nil {
		return
	}
	for _, f := range fills {
		rec := &domain.FillRecord{
			ID:          f.ID.String(),
			MarketID:    string(f.MarketID),
			SelectionID: int64(f.SelectionID),
			Side:        string(f.Side),
			Price:       f.Price.String(),
			Size:        f.Size.String(),
			Reason:      f.Reason,
			PositionQty: f.Position.Size.String(),
			RealizedPnL: f.Position.RealizedPnL.String(),
			FilledAt:    f.FilledAt,
		}
		if err := p.deps.Journal.SaveFill(ctx, rec); err != nil {
			p.deps.Metrics.RecordJournalError()
			p.logger.Error("Failed to journal fill",
				slog.String("fill_id", rec.ID),
				slog.Any("error", err),
			)
		}
	}
}

// logIntents logs accepted intents only when the market's intent signature changes.
func (p *Pipeline) logIntents(step Step) {
	accepted := append(append([]domain.OrderIntent(nil), step.Exits...), step.Entries...)
	sig := signature(accepted)
	if sig == p.signatures[step.MarketID] {
		return
	}
	p.signatures[step.MarketID] = sig
	if sig == "" {
		return
	}
	p.logger.Info("Intents applied",
		slog.String("market", string(step.MarketID)),
		slog.String("notes", step.Notes),
		slog.Any("intents", accepted),
	)
}

func signature(intents []domain.OrderIntent) string {
	parts := make([]string, 0, len(intents))
	for _, it := range intents {
		parts = append(parts, fmt.Sprintf("%d:%s:%s:%s", it.SelectionID, it.Side, it.Price.String(), it.Size.String()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func (p *Pipeline) heartbeat(step Step) {
	p.steps++
	if p.cfg.HeartbeatEvery <= 0 || p.steps%uint64(p.cfg.HeartbeatEvery) != 0 {
		return
	}
	p.logger.Info("Heartbeat",
		slog.Uint64("steps", p.steps),
		slog.String("market", string(step.MarketID)),
		slog.String("regime", step.Snapshot.Regime.String()),
		slog.Int("active_markets", p.deps.Orchestrator.Len()),
		slog.Any("positions", p.deps.Ledger.Snapshot()),
	)
}

func (p *Pipeline) publish(step Step, now time.Time) {
	if p.deps.View == nil {
		return
	}
	p.deps.View.Update(service.MarketView{
		Snapshot:   step.Snapshot,
		Valuations: p.deps.Ledger.Valuations(step.MarketID, step.Snapshot.Books),
		Notes:      step.Notes,
		UpdatedAt:  now,
	})
}

// StateDump is the post-mortem view written by the sequencer on panic.
type StateDump struct {
	Steps     uint64                              `json:"steps"`
	Markets   map[domain.MarketID]market.Snapshot `json:"markets"`
	Positions map[string]domain.Position          `json:"positions"`
}

// DumpState implements engine.StateDumper.
func (p *Pipeline) DumpState() any {
	return StateDump{
		Steps:     p.steps,
		Markets:   p.deps.Orchestrator.Snapshots(),
		Positions: p.deps.Ledger.Snapshot(),
	}
}
