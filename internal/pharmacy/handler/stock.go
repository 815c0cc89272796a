// Package handler exposes the pharmacy core over HTTP.
package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/bill"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/service"
	"github.com/lifetag/lifetag-backend/pkg/dateparse"
	"github.com/lifetag/lifetag-backend/pkg/errors"
	"github.com/lifetag/lifetag-backend/pkg/httputil"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// Uploaded bills are small spreadsheets; cap the multipart read well below
// anything a legitimate supplier export reaches.
const maxBillSize = 16 << 20

// timeNow is swapped out in tests.
var timeNow = time.Now

// StockHandler handles stock ingestion and inventory read endpoints.
type StockHandler struct {
	ledger *service.LedgerService
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(ledger *service.LedgerService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		logger: log,
	}
}

// InventoryRow is a stock entry annotated for the inventory view.
type InventoryRow struct {
	repository.StockEntry
	DaysToExpiry *int `json:"days_to_expiry,omitempty"`
	Expired      bool `json:"expired"`
}

// UploadBill ingests a multipart XLSX or CSV bill into the stock ledger.
func (h *StockHandler) UploadBill(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBillSize); err != nil {
		httputil.Error(w, errors.BadRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.BadRequest("file field required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBillSize))
	if err != nil {
		httputil.Error(w, errors.BadRequest("failed to read upload"))
		return
	}

	format := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	rows, err := bill.Parse(data, format)
	if err != nil {
		httputil.Error(w, errors.BadRequest(err.Error()))
		return
	}

	result, err := h.ledger.IngestBill(r.Context(), rows)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("filename", header.Filename).
		Int("applied", result.Applied).
		Int("skipped", len(result.Skipped)).
		Msg("bill uploaded")
	httputil.JSON(w, http.StatusOK, result)
}

// Inventory lists stock rows annotated with days to expiry.
func (h *StockHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	rows := make([]InventoryRow, 0, len(entries))
	for _, e := range entries {
		row := InventoryRow{StockEntry: e}
		if expiry, err := dateparse.Parse(e.Exp); err == nil {
			days := dateparse.DaysUntil(expiry, timeNow())
			row.DaysToExpiry = &days
			row.Expired = days < 0
		}
		rows = append(rows, row)
	}

	httputil.JSON(w, http.StatusOK, rows)
}

// DeleteStockRequest selects rows for removal by product name, batch, or both.
type DeleteStockRequest struct {
	ProductName string `json:"product_name" validate:"required_without=Batch"`
	Batch       string `json:"batch" validate:"required_without=ProductName"`
	Actor       string `json:"actor"`
}

// DeleteStock removes stock rows and bulk-resolves their alerts.
func (h *StockHandler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	var req DeleteStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = "chemist"
	}

	removed, resolved, err := h.ledger.RemoveByKey(r.Context(), req.ProductName, req.Batch, actor)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{
		"removed":         removed,
		"alerts_resolved": resolved,
	})
}
