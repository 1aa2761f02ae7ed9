package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"repricer_go/internal/domain"
	"repricer_go/internal/execution"
)

const defaultJournalLimit = 50

// LedgerSource is the read side of the position ledger.
type LedgerSource interface {
	Snapshot() map[string]domain.Position
	Fills() []execution.Fill
}

// JournalReader is the read side of the settlement journal.
type JournalReader interface {
	ListFills(ctx context.Context, marketID domain.MarketID) ([]domain.FillRecord, error)
	ListClosedMarkets(ctx context.Context, limit int) ([]domain.ClosedMarketRecord, error)
}

// NewHandler serves the read view as JSON:
//
//	GET /markets                     live markets
//	GET /markets/closed              recently closed markets
//	GET /markets/{id}                one live market
//	GET /positions                   positions keyed "market:selection"
//	GET /fills                       recent in-memory fills
//	GET /journal/fills?market=ID     journaled fills of one market
//	GET /journal/closed?limit=N      journaled closed markets, newest first
//
// The journal routes are only served when journal is non-nil.
func NewHandler(svc *SnapshotService, ledger LedgerSource, journal JournalReader) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /markets", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, svc.GetAll())
	})
	mux.HandleFunc("GET /markets/closed", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, svc.Closed())
	})
	mux.HandleFunc("GET /markets/{id}", func(w http.ResponseWriter, r *http.Request) {
		v, ok := svc.Get(domain.MarketID(r.PathValue("id")))
		if !ok {
			http.Error(w, "market not found", http.StatusNotFound)
			return
		}
		writeJSON(w, v)
	})
	mux.HandleFunc("GET /positions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, ledger.Snapshot())
	})
	mux.HandleFunc("GET /fills", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, ledger.Fills())
	})

	if journal == nil {
		return mux
	}
	mux.HandleFunc("GET /journal/fills", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("market")
		if id == "" {
			http.Error(w, "market query parameter required", http.StatusBadRequest)
			return
		}
		fills, err := journal.ListFills(r.Context(), domain.MarketID(id))
		if err != nil {
			journalError(w, err)
			return
		}
		writeJSON(w, fills)
	})
	mux.HandleFunc("GET /journal/closed", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultJournalLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		closed, err := journal.ListClosedMarkets(r.Context(), limit)
		if err != nil {
			journalError(w, err)
			return
		}
		writeJSON(w, closed)
	})
	return mux
}

func journalError(w http.ResponseWriter, err error) {
	slog.Error("Journal read failed", slog.Any("error", err))
	http.Error(w, "journal unavailable", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}
