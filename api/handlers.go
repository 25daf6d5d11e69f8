/*
handlers.go - HTTP API handlers for the inventory engine

PURPOSE:
  Exposes the pricing and stock engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the inventory
  package.

ENDPOINTS:
  Catalog:
    GET    /api/categorias                         List categories
    POST   /api/categorias                         Create category
    GET    /api/productos                          List products
    POST   /api/productos                          Create product
    GET    /api/productos/{id}                     Get product
    PUT    /api/productos/{id}/precio              Manual price edit

  Bulk price adjustment:
    POST   /api/productos/ajuste-masivo            Apply
    GET    /api/productos/ajuste-masivo/historial  History, newest first
    GET    /api/productos/ajuste-masivo/{id}       Record with snapshot
    POST   /api/productos/ajuste-masivo/{id}/revertir  Revert once

  Stock:
    POST   /api/productos/{id}/ajuste              Apply signed delta
    GET    /api/productos/{id}/movimientos         Stock history, newest first

ERROR HANDLING:
  Errors are returned as plain text (the UI shows the body verbatim):
  - 400: Validation errors, zero delta, malformed body
  - 401: Missing or invalid bearer token (see middleware.go)
  - 404: Unknown product, category or adjustment
  - 409: Already reverted, or a concurrent write won (retry)
  - 500: Internal errors (details logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/inventory-engine/inventory"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog  *inventory.Catalog
	Adjuster *inventory.Adjuster
	Stock    *inventory.StockLedger
	Logger   *slog.Logger
}

// NewHandler wires the inventory services over one store. cache may be nil.
func NewHandler(store inventory.TxStore, cache inventory.HistoryCache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	adjuster := inventory.NewAdjuster(store)
	adjuster.Cache = cache
	adjuster.Logger = logger

	stock := inventory.NewStockLedger(store)
	stock.Logger = logger

	return &Handler{
		Catalog:  inventory.NewCatalog(store),
		Adjuster: adjuster,
		Stock:    stock,
		Logger:   logger,
	}
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decode(w, r, &req) {
		return
	}

	cat, err := h.Catalog.CreateCategory(r.Context(), req.Nombre)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(*cat))
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	scope := inventory.AllProducts()
	if raw := r.URL.Query().Get("categoria_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeText(w, http.StatusBadRequest, "categoria_id: must be an integer")
			return
		}
		scope = inventory.InCategory(inventory.CategoryID(id))
	}

	products, err := h.Catalog.ListProducts(r.Context(), scope)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Precio == nil {
		writeText(w, http.StatusBadRequest, "precio: is required")
		return
	}

	cats := make([]inventory.CategoryID, len(req.Categorias))
	for i, c := range req.Categorias {
		cats[i] = inventory.CategoryID(c)
	}

	p, err := h.Catalog.CreateProduct(r.Context(), inventory.NewProductInput{
		Name:         req.Nombre,
		Price:        *req.Precio,
		InitialStock: req.Stock,
		Categories:   cats,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*p))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	p, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// SetPrice is a manual price edit.
// PUT /api/productos/{id}/precio
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req SetPriceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Precio == nil {
		writeText(w, http.StatusBadRequest, "precio: is required")
		return
	}

	p, err := h.Catalog.SetPrice(r.Context(), id, *req.Precio)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// =============================================================================
// BULK ADJUSTMENT HANDLERS
// =============================================================================

// ApplyBulkAdjustment applies one rule to a category or to all products.
// POST /api/productos/ajuste-masivo
func (h *Handler) ApplyBulkAdjustment(w http.ResponseWriter, r *http.Request) {
	var req BulkAdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Valor == nil {
		writeText(w, http.StatusBadRequest, "valor: is required and must be numeric")
		return
	}

	scope := inventory.AllProducts()
	if req.CategoriaID != nil {
		scope = inventory.InCategory(inventory.CategoryID(*req.CategoriaID))
	}

	rec, err := h.Adjuster.Apply(r.Context(), inventory.ApplyInput{
		Rule: inventory.AdjustmentRule{
			Kind:  ruleKindFromTipo(req.TipoAjuste),
			Value: *req.Valor,
			Scope: scope,
		},
		Note:  req.Observacion,
		Actor: actor(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, BulkAdjustmentResponse{
		ID:                 int64(rec.ID),
		ProductosAfectados: rec.ProductCount,
	})
}

// AdjustmentHistory lists every bulk adjustment, newest first.
// GET /api/productos/ajuste-masivo/historial
func (h *Handler) AdjustmentHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.Adjuster.History(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dtos := make([]AdjustmentDTO, len(records))
	for i, rec := range records {
		dtos[i] = toAdjustmentDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAdjustment returns one record with its snapshot.
// GET /api/productos/ajuste-masivo/{id}
func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := adjustmentID(w, r)
	if !ok {
		return
	}

	rec, err := h.Adjuster.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDetailDTO(*rec))
}

// RevertAdjustment restores the record's snapshot prices.
// POST /api/productos/ajuste-masivo/{id}/revertir
func (h *Handler) RevertAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := adjustmentID(w, r)
	if !ok {
		return
	}

	rec, err := h.Adjuster.Revert(r.Context(), id, actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDetailDTO(*rec))
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// AdjustStock applies a signed stock delta.
// POST /api/productos/{id}/ajuste
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req StockAdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	delta, err := req.Cantidad.Int64()
	if err != nil {
		writeText(w, http.StatusBadRequest, "cantidad: must be a non-zero integer")
		return
	}

	entry, err := h.Stock.ApplyDelta(r.Context(), inventory.StockInput{
		ProductID: id,
		Delta:     delta,
		Reason:    req.Motivo,
		Actor:     actor(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStockMovementDTO(*entry))
}

// StockHistory lists a product's stock movements, newest first.
// GET /api/productos/{id}/movimientos
func (h *Handler) StockHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	entries, err := h.Stock.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dtos := make([]StockMovementDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toStockMovementDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

// writeError maps domain errors to a status and a plain-text message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeText(w, status, message)
}

func statusFor(err error) (int, string) {
	var (
		ve  *inventory.ValidationError
		nf  *inventory.NotFoundError
		are *inventory.AlreadyRevertedError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.As(err, &nf):
		return http.StatusNotFound, nf.Error()
	case errors.As(err, &are):
		return http.StatusConflict, are.Error()
	case inventory.IsRetryable(err):
		return http.StatusConflict, "products were modified concurrently, retry the operation"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decode reads a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeText(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeText(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func productID(w http.ResponseWriter, r *http.Request) (inventory.ProductID, bool) {
	id, ok := pathID(w, r)
	return inventory.ProductID(id), ok
}

func adjustmentID(w http.ResponseWriter, r *http.Request) (inventory.AdjustmentID, bool) {
	id, ok := pathID(w, r)
	return inventory.AdjustmentID(id), ok
}
