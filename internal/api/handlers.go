// Package api serves the operator HTTP interface: health, portfolio state
// and manual exits.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/portfolio"
)

// Portfolio is the read side of the position owner.
type Portfolio interface {
	Snapshot() portfolio.Snapshot
	Open() []*domain.Position
	History() []*domain.Position
	Get(token string) (*domain.Position, bool)
}

// ExitRequester starts operator exits.
type ExitRequester interface {
	RequestExit(ctx context.Context, token string, reason domain.ExitReason) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	portfolio Portfolio
	exits     ExitRequester
	signing   func() bool
	started   time.Time
	logger    *log.Logger
}

// NewHandler creates a new Handler. signing may be nil.
func NewHandler(p Portfolio, exits ExitRequester, signing func() bool, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		portfolio: p,
		exits:     exits,
		signing:   signing,
		started:   time.Now(),
		logger:    logger,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.portfolio.Snapshot()
	resp := map[string]any{
		"status":         "ok",
		"uptime":         time.Since(h.started).Round(time.Second).String(),
		"entries_halted": snap.EntriesHalted,
	}
	if snap.EntriesHalted {
		resp["status"] = "degraded"
		resp["halt_reason"] = snap.HaltReason
	}
	if h.signing != nil {
		resp["signing_available"] = h.signing()
	}
	respondJSON(w, http.StatusOK, resp)
}

type portfolioView struct {
	OpenCount        int                              `json:"open_count"`
	MaxOpenPositions int                              `json:"max_open_positions"`
	Committed        string                           `json:"committed_sol"`
	Ceiling          string                           `json:"ceiling_sol"`
	Available        string                           `json:"available_sol"`
	Realized         string                           `json:"realized_pnl_sol"`
	Unrealized       string                           `json:"unrealized_pnl_sol"`
	EntriesHalted    bool                             `json:"entries_halted"`
	HaltReason       string                           `json:"halt_reason,omitempty"`
	Active           map[string]domain.PositionStatus `json:"active"`
	TakenAt          time.Time                        `json:"taken_at"`
}

// GetPortfolio handles GET /portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap := h.portfolio.Snapshot()
	respondJSON(w, http.StatusOK, portfolioView{
		OpenCount:        snap.OpenCount,
		MaxOpenPositions: snap.MaxOpenPositions,
		Committed:        snap.Committed.String(),
		Ceiling:          snap.Ceiling.String(),
		Available:        snap.Available.String(),
		Realized:         snap.Realized.String(),
		Unrealized:       snap.Unrealized.String(),
		EntriesHalted:    snap.EntriesHalted,
		HaltReason:       snap.HaltReason,
		Active:           snap.Active,
		TakenAt:          snap.TakenAt,
	})
}

type positionView struct {
	ID               string                `json:"id"`
	Token            string                `json:"token"`
	Symbol           string                `json:"symbol,omitempty"`
	Status           domain.PositionStatus `json:"status"`
	Venue            domain.Venue          `json:"venue"`
	EntryCost        string                `json:"entry_cost_sol"`
	EntryPrice       float64               `json:"entry_price"`
	EntryTokenAmount uint64                `json:"entry_token_amount"`
	EntryTx          string                `json:"entry_tx,omitempty"`
	OpenedAt         time.Time             `json:"opened_at"`
	LastPrice        float64               `json:"last_price,omitempty"`
	UnrealizedPnL    string                `json:"unrealized_pnl_sol,omitempty"`
	ExitReason       domain.ExitReason     `json:"exit_reason,omitempty"`
	ExitPrice        float64               `json:"exit_price,omitempty"`
	ExitTx           string                `json:"exit_tx,omitempty"`
	RealizedPnL      string                `json:"realized_pnl_sol,omitempty"`
	ClosedAt         *time.Time            `json:"closed_at,omitempty"`
	FailReason       string                `json:"fail_reason,omitempty"`
	Migrated         bool                  `json:"migrated"`
}

func toView(p *domain.Position) positionView {
	v := positionView{
		ID:               p.ID,
		Token:            p.Token,
		Symbol:           p.Symbol,
		Status:           p.Status,
		Venue:            p.Venue,
		EntryCost:        p.EntryCost.String(),
		EntryPrice:       p.EntryPrice,
		EntryTokenAmount: p.EntryTokenAmount,
		EntryTx:          p.EntryTx,
		OpenedAt:         p.OpenedAt,
		LastPrice:        p.LastPrice,
		ExitReason:       p.ExitReason,
		ExitPrice:        p.ExitPrice,
		ExitTx:           p.ExitTx,
		FailReason:       p.FailReason,
		Migrated:         p.Migrated,
	}
	switch p.Status {
	case domain.StatusOpen, domain.StatusExiting:
		v.UnrealizedPnL = p.UnrealizedPnL(p.LastPrice).StringFixed(9)
	case domain.StatusClosed:
		v.RealizedPnL = p.RealizedPnL().String()
	}
	if !p.ClosedAt.IsZero() {
		closed := p.ClosedAt
		v.ClosedAt = &closed
	}
	return v
}

// GetPositions handles GET /positions. ?status=history lists terminal positions.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.portfolio.Open()
	if r.URL.Query().Get("status") == "history" {
		positions = h.portfolio.History()
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toView(p))
	}
	respondJSON(w, http.StatusOK, views)
}

// GetPosition handles GET /positions/{token}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	pos, ok := h.portfolio.Get(token)
	if !ok {
		respondError(w, http.StatusNotFound, "no active position for "+token)
		return
	}
	respondJSON(w, http.StatusOK, toView(pos))
}

// ExitPosition handles POST /positions/{token}/exit
func (h *Handler) ExitPosition(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	err := h.exits.RequestExit(r.Context(), token, domain.ExitManual)
	switch {
	case err == nil:
		h.logger.Printf("manual exit requested for %s", token)
		respondJSON(w, http.StatusAccepted, map[string]string{"token": token, "status": "exit requested"})
	case errors.Is(err, domain.ErrPositionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
