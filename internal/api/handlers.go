package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockcount/internal"
	"stockcount/internal/catalog"
	"stockcount/internal/logger"
	"stockcount/internal/pipeline"
	"stockcount/internal/stock"
)

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeNotFound       = "NOT_FOUND"
	codeConflict       = "CONFLICT"
	codeUnavailable    = "STORE_UNAVAILABLE"
	codeInternal       = "INTERNAL_ERROR"

	defaultRunsLimit = 20
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

func newError(msg, code string) ErrorResponse {
	return ErrorResponse{Error: msg, Code: code, Timestamp: time.Now()}
}

type ImportRequest struct {
	Content string `json:"content"`
}

type ImportResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Summary internal.ImportSummary `json:"summary"`
}

type StockRequest struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

// RunLister returns recent import runs, newest first.
type RunLister interface {
	ListImportRuns(ctx context.Context, limit int) ([]internal.ImportRun, error)
}

type Options struct {
	SearchLimit       int
	AutocompleteLimit int
}

// Handler holds HTTP request handlers
type Handler struct {
	catalog  *catalog.Service
	importer *pipeline.Importer
	stock    *stock.Service
	runs     RunLister
	opts     Options
	log      *logger.Logger
}

func NewHandler(cat *catalog.Service, importer *pipeline.Importer, st *stock.Service, runs RunLister, opts Options, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 50
	}
	if opts.AutocompleteLimit <= 0 {
		opts.AutocompleteLimit = 5
	}
	return &Handler{catalog: cat, importer: importer, stock: st, runs: runs, opts: opts, log: log}
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, codeInternal
	switch {
	case errors.Is(err, internal.ErrNotFound), errors.Is(err, stock.ErrEmptyCount):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, internal.ErrDuplicateKey):
		status, code = http.StatusConflict, codeConflict
	case errors.Is(err, internal.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, codeUnavailable
	case errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, stock.ErrInvalidBarcode),
		errors.Is(err, stock.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, codeInvalidRequest
	}
	_ = c.Error(err)
	c.JSON(status, newError(err.Error(), code))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, newError(msg, codeInvalidRequest))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.catalog.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": h.importer.Mode()})
}

func (h *Handler) ListProducts(c *gin.Context) {
	page, err := h.catalog.Page(c.Request.Context(), queryInt(c, "page", 1))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) SearchProducts(c *gin.Context) {
	h.search(c, queryInt(c, "limit", h.opts.SearchLimit))
}

func (h *Handler) Autocomplete(c *gin.Context) {
	h.search(c, h.opts.AutocompleteLimit)
}

func (h *Handler) search(c *gin.Context, limit int) {
	items, err := h.catalog.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []internal.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) FindByCode(c *gin.Context) {
	p, err := h.catalog.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, newError("product not found", codeNotFound))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var in internal.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	p, err := h.catalog.Add(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	var in internal.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	p, err := h.catalog.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearProducts(c *gin.Context) {
	n, err := h.catalog.ClearAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// ImportCatalog accepts either {"content": "..."} or the catalog text as the raw body.
// The run outlives a dropped client connection.
func (h *Handler) ImportCatalog(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	content := string(raw)
	if looksLikeJSON(raw) || (c.ContentType() == gin.MIMEJSON && len(bytes.TrimSpace(raw)) > 0) {
		var req ImportRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
		content = req.Content
	}
	if strings.TrimSpace(content) == "" {
		badRequest(c, "Content is required")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	summary, err := h.importer.ImportCatalogFrom(ctx, pipeline.SourceDirect, content)
	if summary.Imported > 0 {
		h.catalog.Imported()
	}
	if errors.Is(err, internal.ErrStoreUnavailable) {
		// Batches committed before the store went away stay committed.
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, ImportResponse{
			Message: err.Error(),
			Code:    codeUnavailable,
			Summary: summary,
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ImportResponse{Success: true, Message: summary.Message(), Summary: summary})
}

func looksLikeJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (h *Handler) ListImportRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusOK, gin.H{"items": []internal.ImportRun{}})
		return
	}
	runs, err := h.runs.ListImportRuns(c.Request.Context(), queryInt(c, "limit", defaultRunsLimit))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if runs == nil {
		runs = []internal.ImportRun{}
	}
	c.JSON(http.StatusOK, gin.H{"items": runs})
}

func (h *Handler) ListStock(c *gin.Context) {
	items, err := h.stock.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []internal.StockItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "totalQuantity": stock.TotalQuantity(items)})
}

func (h *Handler) AddStock(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	res, err := h.stock.Add(c.Request.Context(), req.Barcode, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpdateStock(c *gin.Context) {
	var req QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	removed, err := h.stock.UpdateQuantity(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) DeleteStock(c *gin.Context) {
	if err := h.stock.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearStock(c *gin.Context) {
	n, err := h.stock.Clear(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// ExportStock downloads the count as the ERP text file or, with format=xlsx, a spreadsheet.
func (h *Handler) ExportStock(c *gin.Context) {
	ctx := c.Request.Context()
	switch strings.ToLower(c.DefaultQuery("format", "txt")) {
	case "txt":
		name, content, err := h.stock.ExportText(ctx)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(content))
	case "xlsx":
		var buf bytes.Buffer
		if err := h.stock.WriteXLSX(ctx, &buf); err != nil {
			h.respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+h.stock.XLSXFileName()+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		badRequest(c, "format must be txt or xlsx")
	}
}
