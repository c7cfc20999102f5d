package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/rates"
	ledgersvc "github.com/axomx/reward-ledger/internal/app/services/ledger"
)

func (h *handler) fundPool(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Revenue decimal.Decimal `json:"revenue"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	report, err := h.app.Rewards.FundPool(r.Context(), payload.Revenue)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) revenue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Rewards.Revenue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) payHedgeClaim(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Payout decimal.Decimal `json:"payout"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	purchase, err := h.app.Ledger.PayHedgeClaim(r.Context(), mux.Vars(r)["id"], payload.Payout)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *handler) distributePool(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Period string `json:"period"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	if payload.Period == "" {
		payload.Period = time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	}
	report, err := h.app.Rewards.DistributePool(r.Context(), payload.Period)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) settleYield(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AsOf *time.Time `json:"as_of"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	asOf := time.Now().UTC()
	if payload.AsOf != nil {
		asOf = payload.AsOf.UTC()
	}
	report, err := h.app.Rewards.SettleFixedYield(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) listPending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Journal.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) replayPending(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	if err := h.app.Poller.ReplayNow(r.Context(), hash); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": hash, "status": "recorded"})
}

func (h *handler) setRank(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rank rates.Rank `json:"rank"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	profile, err := h.app.Ledger.SetRank(r.Context(), mux.Vars(r)["address"], payload.Rank)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", ledgersvc.ErrValidation))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
