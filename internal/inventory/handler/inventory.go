package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/internal/inventory/service"
	"github.com/stockwise/stockwise-backend/pkg/actor"
	"github.com/stockwise/stockwise-backend/pkg/calendar"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"github.com/stockwise/stockwise-backend/pkg/httputil"
	"github.com/stockwise/stockwise-backend/pkg/logger"
	"github.com/stockwise/stockwise-backend/pkg/permissions"
)

// IdempotencyKeyHeader lets clients retry a restock without executing it twice
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service is the inventory behavior the handlers expose
type Service interface {
	Restock(ctx context.Context, in service.RestockInput, by *actor.Actor) (*service.RestockResult, error)
	RetireBatch(ctx context.Context, batchID string, by *actor.Actor, reason string) (*service.RetirementResult, error)
	ListBatches(ctx context.Context, positionID string) ([]service.AnnotatedBatch, error)
	GetPosition(ctx context.Context, id string) (*repository.Position, error)
	LookupPosition(ctx context.Context, productID, branchID string) (*repository.Position, error)
	ListMovements(ctx context.Context, positionID string, limit, offset int) ([]*repository.Movement, error)
	ListRestockHistory(ctx context.Context, positionID string, limit, offset int) ([]*repository.RestockRecord, error)
}

// IdempotencyStore remembers completed requests by key and request fingerprint.
// *idempotency.Store satisfies it.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, fingerprint string) ([]byte, bool, error)
	Complete(ctx context.Context, key, fingerprint string, result []byte) error
	Release(ctx context.Context, key string) error
}

// InventoryHandler handles inventory ledger endpoints
type InventoryHandler struct {
	service     Service
	idempotency IdempotencyStore
	cal         *calendar.Calendar
	logger      *logger.Logger
}

// NewInventoryHandler creates a new inventory handler. idem may be nil.
func NewInventoryHandler(svc Service, idem IdempotencyStore, cal *calendar.Calendar, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service:     svc,
		idempotency: idem,
		cal:         cal,
		logger:      log,
	}
}

// Routes builds the inventory router. writeLimit, when set, guards the write endpoints.
func (h *InventoryHandler) Routes(writeLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	var writes []func(http.Handler) http.Handler
	if writeLimit != nil {
		writes = append(writes, writeLimit)
	}

	r.With(writes...).With(httputil.RequirePermission(permissions.InventoryRestock)).
		Post("/restocks", h.Restock)
	r.With(writes...).With(httputil.RequirePermission(permissions.InventoryBatchRetire)).
		Post("/batches/{id}/retire", h.RetireBatch)

	r.Group(func(r chi.Router) {
		r.Use(httputil.RequirePermission(permissions.InventoryRead))

		r.Get("/positions/{id}", h.GetPosition)
		r.Get("/positions/{id}/batches", h.ListBatches)
		r.Get("/positions/{id}/movements", h.ListMovements)
		r.Get("/positions/{id}/restock-history", h.ListRestockHistory)
		r.Get("/products/{productID}/branches/{branchID}/position", h.LookupPosition)
	})

	return r
}

// Restock records a received batch
func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	by := actor.FromContext(ctx)

	var req RestockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	in, err := req.toInput(h.cal.Location())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" && by != nil {
		// Keys are per user so two clerks cannot collide.
		key = by.ID + ":" + key
	}

	var fingerprint string
	if h.idempotency != nil && key != "" {
		fingerprint, err = restockFingerprint(in)
		if err != nil {
			httputil.Error(w, errors.Internal("failed to fingerprint request"))
			return
		}
		stored, acquired, err := h.idempotency.Begin(ctx, key, fingerprint)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		if !acquired {
			w.Header().Set("Idempotent-Replayed", "true")
			httputil.RawJSON(w, http.StatusCreated, stored)
			return
		}
	}

	result, err := h.service.Restock(ctx, in, by)
	if err != nil {
		h.release(ctx, key)
		h.writeError(w, err)
		return
	}

	body, err := httputil.Encode(http.StatusCreated, result)
	if err != nil {
		h.release(ctx, key)
		httputil.Error(w, errors.Internal("failed to encode response"))
		return
	}
	if h.idempotency != nil && key != "" {
		if err := h.idempotency.Complete(ctx, key, fingerprint, body); err != nil {
			h.logger.Warn().Err(err).Str("batch_id", result.BatchID).Msg("failed to store idempotent restock result")
		}
	}

	httputil.RawJSON(w, http.StatusCreated, body)
}

// RetireBatch retires an expired batch
func (h *InventoryHandler) RetireBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RetireRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.RetireBatch(r.Context(), id, actor.FromContext(r.Context()), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// GetPosition gets a position by ID
func (h *InventoryHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	pos, err := h.service.GetPosition(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pos)
}

// LookupPosition finds the position of a product at a branch
func (h *InventoryHandler) LookupPosition(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	branchID, ok := pathUUID(w, r, "branchID")
	if !ok {
		return
	}

	pos, err := h.service.LookupPosition(r.Context(), productID, branchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pos)
}

// ListBatches lists a position's active batches in consumption order
func (h *InventoryHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	batches, err := h.service.ListBatches(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// ListMovements lists a position's movements, newest first
func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	limit, offset := httputil.Pagination(r, defaultPageSize, maxPageSize)

	movements, err := h.service.ListMovements(r.Context(), id, limit, offset)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{Limit: limit, Offset: offset, Count: len(movements)})
}

// ListRestockHistory lists a position's restocks, newest first
func (h *InventoryHandler) ListRestockHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	limit, offset := httputil.Pagination(r, defaultPageSize, maxPageSize)

	records, err := h.service.ListRestockHistory(r.Context(), id, limit, offset)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, &httputil.Meta{Limit: limit, Offset: offset, Count: len(records)})
}

// writeError reports restock failures with their step diagnostics in the details
func (h *InventoryHandler) writeError(w http.ResponseWriter, err error) {
	var restockErr *service.RestockError
	if errors.As(err, &restockErr) {
		httputil.Error(w, restockErr.AppError())
		return
	}
	httputil.Error(w, err)
}

// restockFingerprint identifies a parsed restock so a reused key with a different body is caught.
func restockFingerprint(in service.RestockInput) (string, error) {
	canonical, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (h *InventoryHandler) release(ctx context.Context, key string) {
	if h.idempotency == nil || key == "" {
		return
	}
	if err := h.idempotency.Release(ctx, key); err != nil {
		h.logger.Warn().Err(err).Msg("failed to release idempotency key")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id := chi.URLParam(r, param)
	if err := httputil.ValidateVar(param, id, "required,uuid"); err != nil {
		httputil.Error(w, err)
		return "", false
	}
	return id, true
}
