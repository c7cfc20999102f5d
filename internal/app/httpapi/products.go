package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	ledgersvc "github.com/axomx/reward-ledger/internal/app/services/ledger"
)

func (h *handler) vaultOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.app.Ledger.GetVaultOverview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *handler) strategyOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.app.Ledger.GetStrategyOverview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *handler) insurancePool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.app.Ledger.GetInsurancePool(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *handler) subscribeStrategy(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		StrategyID    string               `json:"strategy_id"`
		Capital       decimal.Decimal      `json:"capital"`
		ExecutionMode domain.ExecutionMode `json:"execution_mode"`
		TxHash        string               `json:"tx_hash"`
		Pay           bool                 `json:"pay"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	req := ledgersvc.StrategyRequest{
		Address:       mux.Vars(r)["address"],
		StrategyID:    payload.StrategyID,
		Capital:       payload.Capital,
		ExecutionMode: payload.ExecutionMode,
		TxHash:        payload.TxHash,
	}

	var (
		sub domain.StrategySubscription
		err error
	)
	if payload.Pay {
		sub, err = h.app.Ledger.PayAndSubscribeStrategy(r.Context(), req)
	} else {
		sub, err = h.app.Ledger.SubscribeStrategy(r.Context(), req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *handler) listStrategySubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.app.Ledger.ListStrategySubscriptions(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *handler) purchaseHedge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount decimal.Decimal `json:"amount"`
		TxHash string          `json:"tx_hash"`
		Pay    bool            `json:"pay"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	req := ledgersvc.HedgeRequest{
		Address: mux.Vars(r)["address"],
		Amount:  payload.Amount,
		TxHash:  payload.TxHash,
	}

	var (
		purchase domain.InsurancePurchase
		err      error
	)
	if payload.Pay {
		purchase, err = h.app.Ledger.PayAndPurchaseHedge(r.Context(), req)
	} else {
		purchase, err = h.app.Ledger.PurchaseHedge(r.Context(), req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (h *handler) listHedges(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.app.Ledger.ListHedgePurchases(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}
