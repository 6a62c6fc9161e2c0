package routes

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"judgedescrow/gateway/middleware"
	"judgedescrow/native/escrow"
	"judgedescrow/storage/eventlog"
)

// EscrowService is the engine surface exposed over HTTP.
type EscrowService interface {
	Initialize(ctx context.Context, caller, treasury common.Address, taxBps uint16, feePercent uint8) (*escrow.Config, error)
	Config(ctx context.Context) (*escrow.Config, error)
	UpdateConfig(ctx context.Context, caller common.Address, update escrow.ConfigUpdate) (*escrow.Config, error)
	AcceptJudgeSeat(ctx context.Context, caller common.Address) (*escrow.Config, error)
	Create(ctx context.Context, payer, payee common.Address, amount *big.Int, asset escrow.Asset) (*escrow.Escrow, error)
	Escrow(ctx context.Context, payer common.Address) (*escrow.Escrow, error)
	HeldBalance(ctx context.Context, payer common.Address) (*big.Int, error)
	Deposit(ctx context.Context, payer common.Address, asset escrow.Asset) error
	Dispute(ctx context.Context, caller, payer common.Address) error
	Release(ctx context.Context, caller, payer common.Address) (escrow.Settlement, error)
	Return(ctx context.Context, caller, payer common.Address) (escrow.Settlement, error)
	Judge(ctx context.Context, caller, payer common.Address, decision bool) (escrow.Settlement, error)
	Recover(ctx context.Context, caller, payer common.Address) (escrow.Settlement, error)
}

// EventArchive serves archived escrow events.
type EventArchive interface {
	Recent(ctx context.Context, limit int) ([]eventlog.Record, error)
	ByPayer(ctx context.Context, payer string, limit int) ([]eventlog.Record, error)
}

var errNoCaller = errors.New("authenticated caller required")

type escrowRoutes struct {
	service EscrowService
	events  EventArchive
	stream  *EventHub
	logger  *slog.Logger
	timeout time.Duration
}

func (er *escrowRoutes) mount(r chi.Router) {
	r.Get("/config", er.getConfig)
	r.Post("/config/initialize", er.initialize)
	r.Patch("/config", er.updateConfig)
	r.Post("/config/accept-judge", er.acceptJudge)

	r.Post("/escrows", er.create)
	r.Get("/escrows/{payer}", er.get)
	r.Post("/escrows/{payer}/deposit", er.deposit)
	r.Post("/escrows/{payer}/dispute", er.dispute)
	r.Post("/escrows/{payer}/release", er.settle(escrow.OutcomeReleased, er.service.Release))
	r.Post("/escrows/{payer}/return", er.settle(escrow.OutcomeReturned, er.service.Return))
	r.Post("/escrows/{payer}/judge", er.judge)
	r.Post("/escrows/{payer}/recover", er.settle(escrow.OutcomeRecovered, er.service.Recover))

	if er.events != nil {
		r.Get("/events", er.recentEvents)
		r.Get("/escrows/{payer}/events", er.payerEvents)
	}
	if er.stream != nil {
		r.Get("/events/stream", er.streamEvents)
	}
}

func (er *escrowRoutes) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := er.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func (er *escrowRoutes) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		er.logger.Error("escrow request failed",
			"operation", op,
			"path", r.URL.Path,
			"requestId", middleware.RequestIDFromContext(r.Context()),
			"error", err)
	}
	writeEngineError(w, err)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errNoCaller)
		return common.Address{}, false
	}
	return caller, true
}

func payerParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	payer, err := parseAddress("payer", chi.URLParam(r, "payer"))
	if err != nil {
		writeBadRequest(w, err)
		return common.Address{}, false
	}
	return payer, true
}

func (er *escrowRoutes) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := er.context(r.Context())
	defer cancel()

	cfg, err := er.service.Config(ctx)
	if err != nil {
		er.fail(w, r, "config", err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(cfg))
}

type initializeRequest struct {
	Treasury   string `json:"treasury"`
	TaxBps     uint16 `json:"taxBps"`
	FeePercent uint8  `json:"feePercent"`
}

func (er *escrowRoutes) initialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	treasury, err := parseAddress("treasury", req.Treasury)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx, cancel := er.context(r.Context())
	defer cancel()
	cfg, err := er.service.Initialize(ctx, caller, treasury, req.TaxBps, req.FeePercent)
	if err != nil {
		er.fail(w, r, "initialize", err)
		return
	}
	writeJSON(w, http.StatusCreated, newConfigView(cfg))
}

type updateConfigRequest struct {
	Treasury     *string `json:"treasury"`
	PendingJudge *string `json:"pendingJudge"`
	TaxBps       *uint16 `json:"taxBps"`
	FeePercent   *uint8  `json:"feePercent"`
}

func (er *escrowRoutes) updateConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req updateConfigRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	update := escrow.ConfigUpdate{TaxBps: req.TaxBps, FeePercent: req.FeePercent}
	if req.Treasury != nil {
		treasury, err := parseAddress("treasury", *req.Treasury)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		update.Treasury = &treasury
	}
	if req.PendingJudge != nil {
		nominee, err := parseAddress("pendingJudge", *req.PendingJudge)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		update.PendingJudge = &nominee
	}

	ctx, cancel := er.context(r.Context())
	defer cancel()
	cfg, err := er.service.UpdateConfig(ctx, caller, update)
	if err != nil {
		er.fail(w, r, "update_config", err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(cfg))
}

func (er *escrowRoutes) acceptJudge(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	ctx, cancel := er.context(r.Context())
	defer cancel()
	cfg, err := er.service.AcceptJudgeSeat(ctx, caller)
	if err != nil {
		er.fail(w, r, "accept_judge_seat", err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(cfg))
}

type createRequest struct {
	Payee  string     `json:"payee"`
	Amount string     `json:"amount"`
	Asset  *assetView `json:"asset"`
}

func (er *escrowRoutes) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	payee, err := parseAddress("payee", req.Payee)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	asset, err := req.Asset.toAsset()
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx, cancel := er.context(r.Context())
	defer cancel()
	created, err := er.service.Create(ctx, caller, payee, amount, asset)
	if err != nil {
		er.fail(w, r, "create", err)
		return
	}
	w.Header().Set("Location", "/v1/escrow/escrows/"+created.Payer.Hex())
	writeJSON(w, http.StatusCreated, newEscrowView(created, nil))
}

func (er *escrowRoutes) get(w http.ResponseWriter, r *http.Request) {
	payer, ok := payerParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := er.context(r.Context())
	defer cancel()
	esc, err := er.service.Escrow(ctx, payer)
	if err != nil {
		er.fail(w, r, "get", err)
		return
	}
	held, err := er.service.HeldBalance(ctx, payer)
	if err != nil {
		// The escrow may have settled between the two reads.
		er.fail(w, r, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowView(esc, held))
}

type depositRequest struct {
	Asset *assetView `json:"asset"`
}

func (er *escrowRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	payer, ok := payerParam(w, r)
	if !ok {
		return
	}
	if caller != payer {
		writeJSONError(w, http.StatusForbidden, errors.New("only the payer can deposit"))
		return
	}
	var req depositRequest
	if r.ContentLength != 0 {
		if err := decodeRequest(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	asset, err := req.Asset.toAsset()
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx, cancel := er.context(r.Context())
	defer cancel()
	if err := er.service.Deposit(ctx, payer, asset); err != nil {
		er.fail(w, r, "deposit", err)
		return
	}
	esc, err := er.service.Escrow(ctx, payer)
	if err != nil {
		er.fail(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowView(esc, nil))
}

func (er *escrowRoutes) dispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	payer, ok := payerParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := er.context(r.Context())
	defer cancel()
	if err := er.service.Dispute(ctx, caller, payer); err != nil {
		er.fail(w, r, "dispute", err)
		return
	}
	esc, err := er.service.Escrow(ctx, payer)
	if err != nil {
		er.fail(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowView(esc, nil))
}

type settleFunc func(ctx context.Context, caller, payer common.Address) (escrow.Settlement, error)

func (er *escrowRoutes) settle(outcome escrow.Outcome, fn settleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		payer, ok := payerParam(w, r)
		if !ok {
			return
		}
		ctx, cancel := er.context(r.Context())
		defer cancel()
		s, err := fn(ctx, caller, payer)
		if err != nil {
			er.fail(w, r, string(outcome), err)
			return
		}
		writeJSON(w, http.StatusOK, newSettlementView(outcome, s))
	}
}

type judgeRequest struct {
	Decision *bool `json:"decision"`
}

func (er *escrowRoutes) judge(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var req judgeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Decision == nil {
		writeBadRequest(w, errors.New("decision is required"))
		return
	}
	decision := *req.Decision
	er.settle(escrow.OutcomeJudged, func(ctx context.Context, caller, payer common.Address) (escrow.Settlement, error) {
		return er.service.Judge(ctx, caller, payer, decision)
	})(w, r)
}

func eventLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func (er *escrowRoutes) recentEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := er.context(r.Context())
	defer cancel()
	records, err := er.events.Recent(ctx, eventLimit(r))
	if err != nil {
		er.fail(w, r, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": nonNil(records)})
}

func (er *escrowRoutes) payerEvents(w http.ResponseWriter, r *http.Request) {
	payer, ok := payerParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := er.context(r.Context())
	defer cancel()
	records, err := er.events.ByPayer(ctx, payer.Hex(), eventLimit(r))
	if err != nil {
		er.fail(w, r, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": nonNil(records)})
}

func nonNil(records []eventlog.Record) []eventlog.Record {
	if records == nil {
		return []eventlog.Record{}
	}
	return records
}
