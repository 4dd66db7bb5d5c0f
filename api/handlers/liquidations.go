package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/openalpha/radiant-lend/api/types"
)

// LiquidationHandler serves liquidation history, at-risk scans and
// liquidation execution
type LiquidationHandler struct {
	service types.LiquidationService
}

// NewLiquidationHandler creates a new liquidation handler
func NewLiquidationHandler(service types.LiquidationService) *LiquidationHandler {
	return &LiquidationHandler{service: service}
}

// HandleLiquidations handles GET /v1/liquidations (history) and
// POST /v1/liquidations (execute)
func (h *LiquidationHandler) HandleLiquidations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleHistory(w, r)
	case http.MethodPost:
		h.handleExecute(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleAtRisk handles GET /v1/liquidations/at-risk
func (h *LiquidationHandler) HandleAtRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snapshots, err := h.service.GetAtRisk(r.Context(), parseLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"at_risk": snapshots,
	})
}

func (h *LiquidationHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.GetLiquidations(r.Context(), parseLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"liquidations": records,
	})
}

func (h *LiquidationHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req types.LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Liquidator == "" || req.Borrower == "" || req.DebtAssetID == "" ||
		req.CollateralAssetID == "" || req.RepayAmount == "" {
		writeError(w, http.StatusBadRequest, "all liquidation fields are required")
		return
	}

	record, err := h.service.Liquidate(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return fallback
}
