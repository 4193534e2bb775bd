package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"grid-trader-go/internal/models"
	"grid-trader-go/internal/storage"

	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	store *storage.Store
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, store *storage.Store) *APIHandler {
	return &APIHandler{log: log, store: store}
}

// StatusResponse is the structure for the /api/status endpoint.
type StatusResponse struct {
	BotStart    time.Time          `json:"bot_start"`
	ConfigJSON  json.RawMessage    `json:"config"`
	LatestAsset *models.AssetPoint `json:"latest_asset,omitempty"`
}

// StatusHandler returns the bot's start time, active config and latest
// valuation sample.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.State()
	if err != nil {
		h.log.Error("Failed to load bot state", zap.Error(err))
		http.Error(w, "No bot state recorded", http.StatusNotFound)
		return
	}

	resp := StatusResponse{
		BotStart:   state.StartTime,
		ConfigJSON: json.RawMessage(state.ConfigJSON),
	}

	curve, err := h.store.AssetCurve(time.Now().Add(-24 * time.Hour))
	if err != nil {
		h.log.Error("Failed to load asset curve", zap.Error(err))
	} else if len(curve) > 0 {
		resp.LatestAsset = &curve[len(curve)-1]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// OrdersHandler returns the most recent closed orders, newest first. The
// optional limit query parameter defaults to 100.
func (h *APIHandler) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	orders, err := h.store.RecentClosedOrders(limit)
	if err != nil {
		h.log.Error("Failed to get closed orders", zap.Error(err))
		http.Error(w, "Failed to get closed orders", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// AssetCurveHandler returns the valuation samples of the trailing window.
// The optional hours query parameter defaults to 24.
func (h *APIHandler) AssetCurveHandler(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = n
	}

	curve, err := h.store.AssetCurve(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		h.log.Error("Failed to load asset curve", zap.Error(err))
		http.Error(w, "Failed to load asset curve", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(curve)
}
