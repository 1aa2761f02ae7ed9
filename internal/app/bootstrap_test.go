package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/infra"
	"repricer_go/internal/ingest/betfair"
	"repricer_go/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	cfg := infra.DefaultConfig()
	cfg.Logging.File = ""
	cfg.Logging.Level = "error"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "journal.db")
	return cfg
}

func TestBootstrap_InitializeWith(t *testing.T) {
	b := NewBootstrap()
	require.NoError(t, b.InitializeWith(testConfig(t)))
	defer b.Close()

	assert.NotNil(t, b.Journal)
	assert.NotNil(t, b.Metrics)
	assert.NotNil(t, b.Pipeline)
	assert.NotNil(t, b.Sequencer)

	_, err := b.FeedWorker()
	var ce *domain.ConfigError
	assert.True(t, errors.As(err, &ce), "no feed mode configured")
}

func TestBootstrap_FeedWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Path = ""
	cfg.Feed.MarketIDs = []string{"1.1"}

	cfg.Feed.Mode = infra.FeedModePoll
	b := NewBootstrap()
	require.NoError(t, b.InitializeWith(cfg))
	w, err := b.FeedWorker()
	require.NoError(t, err)
	assert.IsType(t, &betfair.Poller{}, w)
	assert.Nil(t, b.Journal)

	cfg.Feed.Mode = infra.FeedModeStream
	w, err = b.FeedWorker()
	require.NoError(t, err)
	assert.IsType(t, &betfair.StreamWorker{}, w)
}

func TestBootstrap_InitializeMissingConfig(t *testing.T) {
	err := NewBootstrap().Initialize(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestRunPaper_Lifecycle(t *testing.T) {
	b := NewBootstrap()
	require.NoError(t, b.InitializeWith(testConfig(t)))
	defer b.Close()

	events, err := PaperScript("1.234", start, time.Second)
	require.NoError(t, err)

	var out bytes.Buffer
	steps, err := b.RunPaper(context.Background(), events, &out)
	require.NoError(t, err)
	require.Len(t, steps, 10)

	blocked := func(i int) string { return steps[i].Blocked }

	// Initial open cools down for two seconds.
	assert.Equal(t, pipeline.GuardRegime, blocked(0))
	assert.Equal(t, pipeline.GuardRegime, blocked(1))

	// Entry once the cooldown has elapsed.
	require.Len(t, steps[2].Entries, 1)
	assert.Equal(t, domain.SideBack, steps[2].Entries[0].Side)

	// Suspend, then the reopen arms a fresh cooldown.
	assert.Equal(t, domain.RegimeSuspended, steps[3].Snapshot.Regime)
	assert.Equal(t, pipeline.GuardRegime, blocked(4))
	assert.Equal(t, pipeline.GuardRegime, blocked(5))

	// Take profit closes the position.
	require.Len(t, steps[6].Exits, 1)
	assert.True(t, steps[6].Fills[0].Position.IsFlat())

	// In-play locks trading even though the venue still says open.
	assert.Equal(t, domain.RegimeInPlay, steps[7].Snapshot.Regime)
	assert.Equal(t, domain.RegimeInPlay, steps[8].Snapshot.Regime)
	assert.Equal(t, pipeline.GuardRegime, blocked(8))

	assert.True(t, steps[9].Evicted)

	text := out.String()
	assert.Contains(t, text, "guard blocked (regime)")
	assert.Contains(t, text, "INTENT BACK sel=7")
	assert.Contains(t, text, "CLOSE LAY sel=7")
	assert.Contains(t, text, "CLOSED -> evicted")
	assert.Equal(t, 10, strings.Count(text, "\n"))

	fills, err := b.Journal.ListFills(context.Background(), "1.234")
	require.NoError(t, err)
	assert.Len(t, fills, 2)

	// Closing settled the position out of the live ledger.
	assert.Empty(t, b.Ledger.MarketPositions("1.234"))

	srv := httptest.NewServer(b.ReadHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/journal/fills?market=1.234")
	require.NoError(t, err)
	defer resp.Body.Close()
	var journaled []domain.FillRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&journaled))
	assert.Len(t, journaled, 2)

	resp2, err := http.Get(srv.URL + "/journal/closed")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var closed []domain.ClosedMarketRecord
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&closed))
	require.Len(t, closed, 1)
	assert.Equal(t, "1.234", closed[0].MarketID)
	assert.Contains(t, closed[0].Positions, `"1.234:7"`)
}

func TestBootstrap_ReadHandlerWithoutJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Path = ""
	b := NewBootstrap()
	require.NoError(t, b.InitializeWith(cfg))

	srv := httptest.NewServer(b.ReadHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/journal/closed")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/fills")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFormatStep_NoIntent(t *testing.T) {
	line := FormatStep(4, pipeline.Step{MarketID: "1.1", Notes: "no actionable intent"})
	assert.Equal(t, "[4] 1.1 regime=UNKNOWN NO INTENT (no actionable intent)", line)
}
