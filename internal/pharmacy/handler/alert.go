package handler

import (
	"fmt"
	"html"
	"net/http"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/service"
	"github.com/lifetag/lifetag-backend/pkg/httputil"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// AlertHandler handles alert listing and resolution endpoints.
type AlertHandler struct {
	engine     *service.AlertEngine
	dispatcher *service.Dispatcher
	logger     *logger.Logger

	expiryThresholdDays int
	lowStockThreshold   int
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(
	engine *service.AlertEngine,
	dispatcher *service.Dispatcher,
	expiryThresholdDays, lowStockThreshold int,
	log *logger.Logger,
) *AlertHandler {
	return &AlertHandler{
		engine:              engine,
		dispatcher:          dispatcher,
		logger:              log,
		expiryThresholdDays: expiryThresholdDays,
		lowStockThreshold:   lowStockThreshold,
	}
}

// List sweeps eagerly so the view is current, dispatches anything new, and
// returns the active alerts.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	created, err := h.engine.Sweep(r.Context(), h.expiryThresholdDays, h.lowStockThreshold)
	if err != nil {
		h.logger.Error().Err(err).Msg("eager sweep failed")
	} else {
		h.dispatcher.Dispatch(created)
	}

	active, err := h.engine.ListActive(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, active)
}

// Resolve marks an alert resolved from the link embedded in notification
// mail. Responds with a small HTML confirmation page since the click comes
// from a mail client, not an API consumer.
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	alertID := r.URL.Query().Get("alert_id")
	actor := r.URL.Query().Get("user")
	if actor == "" {
		actor = "chemist"
	}

	if alertID == "" {
		httputil.HTML(w, http.StatusBadRequest, "<html><body><h2>Missing alert_id</h2></body></html>")
		return
	}

	ok, err := h.engine.Resolve(r.Context(), alertID, actor)
	if err != nil {
		httputil.HTML(w, http.StatusInternalServerError, "<html><body><h2>Something went wrong, please try again.</h2></body></html>")
		return
	}
	if !ok {
		httputil.HTML(w, http.StatusNotFound, "<html><body><h2>Alert not found or already resolved.</h2></body></html>")
		return
	}

	body := fmt.Sprintf(
		"<html><body><h2>Alert resolved</h2><p>Alert %s was marked as handled by %s. Thank you.</p></body></html>",
		html.EscapeString(alertID), html.EscapeString(actor),
	)
	httputil.HTML(w, http.StatusOK, body)
}
