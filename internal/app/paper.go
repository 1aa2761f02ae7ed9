package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/pipeline"
)

type scriptTick struct {
	open, inPlay, closed domain.Signal
	back, lay            float64
}

// paperScript walks one market through its whole lifecycle:
// open, suspend, reopen with cooldown, in-play lockout, close.
var paperScript = []scriptTick{
	{open: domain.SignalTrue, back: 2.0, lay: 2.02},
	{open: domain.SignalTrue, back: 2.0, lay: 2.02},
	{open: domain.SignalTrue, back: 2.0, lay: 2.02},
	{open: domain.SignalFalse, back: 2.0, lay: 2.02},
	{open: domain.SignalTrue, back: 2.04, lay: 2.08},
	{open: domain.SignalTrue, back: 2.1, lay: 2.15},
	{open: domain.SignalTrue, back: 2.1, lay: 2.15},
	{open: domain.SignalTrue, inPlay: domain.SignalTrue, back: 2.2, lay: 2.24},
	{open: domain.SignalTrue, back: 2.2, lay: 2.24},
	{open: domain.SignalFalse, closed: domain.SignalTrue},
}

// PaperScript builds the scripted events for marketID, one per step apart.
func PaperScript(marketID domain.MarketID, start time.Time, step time.Duration) ([]domain.MarketEvent, error) {
	events := make([]domain.MarketEvent, 0, len(paperScript))
	for i, tk := range paperScript {
		var books []domain.InstrumentBook
		if tk.back > 0 && tk.lay > 0 {
			back := domain.MustPriceSize(tk.back, 10)
			lay := domain.MustPriceSize(tk.lay, 10)
			books = []domain.InstrumentBook{{SelectionID: 7, BestBack: &back, BestLay: &lay}}
		}
		ev, err := domain.NewMarketEvent(marketID, int64(i+1), start.Add(time.Duration(i)*step), books, tk.open, tk.inPlay, tk.closed)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// RunPaper drives events straight through the pipeline, using each event's
// observation time as the clock, and prints one line per step to out.
func (b *Bootstrap) RunPaper(ctx context.Context, events []domain.MarketEvent, out io.Writer) ([]pipeline.Step, error) {
	steps := make([]pipeline.Step, 0, len(events))
	for _, ev := range events {
		step, err := b.Pipeline.Process(ctx, ev, ev.ObservedAt)
		if err != nil {
			if errors.Is(err, domain.ErrOrderingViolation) {
				fmt.Fprintf(out, "[%d] DROPPED %v\n", ev.Seq, err)
				continue
			}
			return steps, err
		}
		steps = append(steps, step)
		fmt.Fprintln(out, FormatStep(ev.Seq, step))
	}
	return steps, nil
}

// FormatStep renders a step as one human-readable line.
func FormatStep(seq int64, s pipeline.Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s regime=%s", seq, s.MarketID, s.Snapshot.Regime)

	switch {
	case s.Evicted:
		sb.WriteString(" CLOSED -> evicted")
		return sb.String()
	case s.Blocked != "":
		fmt.Fprintf(&sb, " guard blocked (%s)", s.Blocked)
		return sb.String()
	}

	for _, it := range s.Exits {
		fmt.Fprintf(&sb, " CLOSE %s sel=%d price=%s size=%s", it.Side, it.SelectionID, it.Price, it.Size)
	}
	for _, it := range s.Entries {
		fmt.Fprintf(&sb, " INTENT %s sel=%d price=%s size=%s", it.Side, it.SelectionID, it.Price, it.Size)
	}
	for _, r := range s.Rejected {
		fmt.Fprintf(&sb, " REJECTED %s sel=%d (%s)", r.Intent.Side, r.Intent.SelectionID, r.Reason)
	}
	for _, f := range s.Fills {
		fmt.Fprintf(&sb, " pos=%s realized=%s", f.Position.Size, f.Position.RealizedPnL)
	}
	if len(s.Exits)+len(s.Entries)+len(s.Rejected) == 0 {
		fmt.Fprintf(&sb, " NO INTENT (%s)", s.Notes)
	}
	return sb.String()
}
