package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/openalpha/radiant-lend/api/types"
)

// ReserveHandler serves asset listings, reserve state and prices
type ReserveHandler struct {
	service types.MarketService
}

// NewReserveHandler creates a new reserve handler
func NewReserveHandler(service types.MarketService) *ReserveHandler {
	return &ReserveHandler{service: service}
}

// HandleAssets handles GET /v1/assets
func (h *ReserveHandler) HandleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	assets, err := h.service.GetAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
	})
}

// HandleReserves handles GET /v1/reserves
func (h *ReserveHandler) HandleReserves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reserves, err := h.service.GetReserves(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reserves": reserves,
	})
}

// HandleReserve handles GET /v1/reserves/{assetID} and
// GET /v1/reserves/{assetID}/price
func (h *ReserveHandler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/reserves/")
	assetID, endpoint := splitPath(path)
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "Asset ID required")
		return
	}

	switch endpoint {
	case "":
		reserve, err := h.service.GetReserve(r.Context(), assetID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, reserve)

	case "price":
		price, err := h.service.GetPrice(r.Context(), assetID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, price)

	default:
		writeError(w, http.StatusNotFound, "Endpoint not found")
	}
}

// splitPath splits "{id}/{endpoint}" into its two parts
func splitPath(path string) (string, string) {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
