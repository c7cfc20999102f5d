package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	app "github.com/axomx/reward-ledger/internal/app"
	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/metrics"
	"github.com/axomx/reward-ledger/internal/app/rates"
	ledgersvc "github.com/axomx/reward-ledger/internal/app/services/ledger"
	"github.com/axomx/reward-ledger/internal/app/services/reconcile"
	"github.com/axomx/reward-ledger/internal/app/services/rewards"
	svcerrors "github.com/axomx/reward-ledger/internal/errors"
	"github.com/axomx/reward-ledger/internal/httputil"
	"github.com/axomx/reward-ledger/internal/middleware"
	"github.com/axomx/reward-ledger/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Config controls the middleware around the API.
type Config struct {
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	// Limiter overrides RateLimit/RateBurst when set.
	Limiter *middleware.RateLimiter
	// Admin guards /v1/admin. Without it admin routes answer 403.
	Admin *middleware.AdminAuth
	// AuditLimit caps the in-memory admin audit trail.
	AuditLimit int
	// AuditSink, if set, receives every admin audit entry.
	AuditSink AuditSink
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	log   *logger.Logger
	audit *auditLog
}

// NewHandler returns the REST API with tracing, metrics, CORS and rate
// limiting applied.
func NewHandler(application *app.Application, cfg Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app:   application,
		log:   log,
		audit: newAuditLog(cfg.AuditLimit, cfg.AuditSink, log),
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteServiceError(w, svcerrors.NotFound("route not found", nil))
	})
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	switch {
	case cfg.Limiter != nil:
		api.Use(cfg.Limiter.Handler)
	case cfg.RateLimit > 0:
		api.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, log).Handler)
	}

	api.HandleFunc("/rates", h.getRates).Methods(http.MethodGet)
	api.HandleFunc("/vault/projection", h.projectYield).Methods(http.MethodGet)
	api.HandleFunc("/vault/overview", h.vaultOverview).Methods(http.MethodGet)
	api.HandleFunc("/strategies", h.strategyOverview).Methods(http.MethodGet)
	api.HandleFunc("/insurance/pool", h.insurancePool).Methods(http.MethodGet)

	api.HandleFunc("/wallets/auth", h.authenticate).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}", h.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/vault/deposits", h.deposit).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/vault/positions", h.listPositions).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/vault/positions/{id}/withdraw", h.withdraw).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/nodes", h.purchaseNode).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/nodes/milestones/check", h.checkMilestones).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/nodes/overview", h.nodeOverview).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/nodes/earnings", h.nodeEarnings).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/referrals", h.referralTree).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/commissions", h.commissionSummary).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/transactions", h.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/vip", h.subscribeVip).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/strategies", h.subscribeStrategy).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/strategies", h.listStrategySubscriptions).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/hedges", h.purchaseHedge).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}/hedges", h.listHedges).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	if cfg.Admin != nil {
		admin.Use(cfg.Admin.Handler)
	} else {
		admin.Use(denyAll)
	}
	admin.Use(h.audit.middleware)
	admin.HandleFunc("/pool/fund", h.fundPool).Methods(http.MethodPost)
	admin.HandleFunc("/pool/distribute", h.distributePool).Methods(http.MethodPost)
	admin.HandleFunc("/revenue", h.revenue).Methods(http.MethodGet)
	admin.HandleFunc("/hedges/{id}/payout", h.payHedgeClaim).Methods(http.MethodPost)
	admin.HandleFunc("/yield/settle", h.settleYield).Methods(http.MethodPost)
	admin.HandleFunc("/reconciliation", h.listPending).Methods(http.MethodGet)
	admin.HandleFunc("/reconciliation/{hash}/replay", h.replayPending).Methods(http.MethodPost)
	admin.HandleFunc("/profiles/{address}/rank", h.setRank).Methods(http.MethodPost)
	admin.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	var out http.Handler = r
	out = middleware.NewCORSMiddleware(cfg.AllowedOrigins).Handler(out)
	out = metrics.InstrumentHandler(out)
	out = middleware.NewTracingMiddleware(log).Handler(out)
	return out
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteServiceError(w, svcerrors.Forbidden("admin access is not configured"))
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"rates_version": h.app.Rates.Version,
		"services":      h.app.Services(),
	})
}

func (h *handler) getRates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Rates)
}

func (h *handler) projectYield(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	planType := q.Get("plan_type")
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: amount: %v", ledgersvc.ErrValidation, err))
		return
	}
	days := 0
	if raw := q.Get("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil || days < 0 {
			h.writeError(w, r, fmt.Errorf("%w: days must be a non-negative integer", ledgersvc.ErrValidation))
			return
		}
	} else if plan, ok := h.app.Rates.VaultPlan(planType); ok {
		days = plan.Days
	}

	projection, err := h.app.Ledger.ProjectYield(planType, amount, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (h *handler) authenticate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address      string `json:"address"`
		ReferralCode string `json:"referral_code"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	profile, err := h.app.Ledger.AuthenticateWallet(r.Context(), payload.Address, payload.ReferralCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.app.Ledger.GetProfile(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PlanType string          `json:"plan_type"`
		Amount   decimal.Decimal `json:"amount"`
		TxHash   string          `json:"tx_hash"`
		Pay      bool            `json:"pay"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	req := ledgersvc.DepositRequest{
		Address:  mux.Vars(r)["address"],
		PlanType: payload.PlanType,
		Amount:   payload.Amount,
		TxHash:   payload.TxHash,
	}

	var (
		pos domain.VaultPosition
		err error
	)
	if payload.Pay {
		pos, err = h.app.Ledger.PayAndDeposit(r.Context(), req)
	} else {
		pos, err = h.app.Ledger.DepositToVault(r.Context(), req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	views, err := h.app.Ledger.ListVaultPositions(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.app.Ledger.WithdrawFromVault(r.Context(), vars["address"], vars["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) purchaseNode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NodeType    rates.NodeType     `json:"node_type"`
		PaymentMode domain.PaymentMode `json:"payment_mode"`
		TxHash      string             `json:"tx_hash"`
		Pay         bool               `json:"pay"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	req := ledgersvc.PurchaseRequest{
		Address:     mux.Vars(r)["address"],
		NodeType:    payload.NodeType,
		PaymentMode: payload.PaymentMode,
		TxHash:      payload.TxHash,
	}

	var (
		membership domain.NodeMembership
		err        error
	)
	if payload.Pay {
		membership, err = h.app.Ledger.PayAndPurchaseNode(r.Context(), req)
	} else {
		membership, err = h.app.Ledger.PurchaseNode(r.Context(), req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

func (h *handler) checkMilestones(w http.ResponseWriter, r *http.Request) {
	views, err := h.app.Ledger.CheckNodeMilestones(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) nodeOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.app.Ledger.GetNodeOverview(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *handler) nodeEarnings(w http.ResponseWriter, r *http.Request) {
	records, err := h.app.Ledger.ListNodeEarnings(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) referralTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.app.Ledger.GetReferralTree(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *handler) commissionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Ledger.GetCommissionSummary(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txType := domain.TransactionType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))))
	txs, err := h.app.Ledger.ListTransactions(r.Context(), mux.Vars(r)["address"], txType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) subscribeVip(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Plan   string `json:"plan"`
		TxHash string `json:"tx_hash"`
		Pay    bool   `json:"pay"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	address := mux.Vars(r)["address"]

	var (
		profile domain.Profile
		err     error
	)
	if payload.Pay {
		profile, err = h.app.Ledger.PayAndSubscribeVip(r.Context(), address, payload.Plan)
	} else {
		profile, err = h.app.Ledger.SubscribeVip(r.Context(), address, payload.Plan, payload.TxHash)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), dst); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", ledgersvc.ErrValidation, err))
		return false
	}
	return true
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := toServiceError(err)
	if serviceErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(map[string]interface{}{
			"path":     r.URL.Path,
			"method":   r.Method,
			"trace_id": middleware.TraceID(r.Context()),
		}).Error("request failed")
	}
	httputil.WriteServiceError(w, serviceErr)
}

// toServiceError maps service errors onto HTTP error classes.
func toServiceError(err error) *svcerrors.ServiceError {
	if se := svcerrors.GetServiceError(err); se != nil {
		return se
	}
	var partial *ledgersvc.PartialFailureError
	switch {
	case errors.As(err, &partial):
		return svcerrors.PartialFailure(partial.TxHash, err)
	case errors.Is(err, ledgersvc.ErrValidation), errors.Is(err, rewards.ErrInvalidAmount):
		return svcerrors.Validation(err.Error(), err)
	case errors.Is(err, ledgersvc.ErrNotFound), errors.Is(err, reconcile.ErrNotFound):
		return svcerrors.NotFound(err.Error(), err)
	case errors.Is(err, ledgersvc.ErrAlreadyProcessed):
		return svcerrors.Conflict("already processed: the request was applied before or lost a concurrent update", err)
	case errors.Is(err, ledgersvc.ErrPaymentRequired):
		return svcerrors.PaymentRequired(err.Error())
	case errors.Is(err, ledgersvc.ErrPaymentFailed):
		return svcerrors.PaymentFailed(err)
	}
	return svcerrors.Internal("internal error", err)
}
