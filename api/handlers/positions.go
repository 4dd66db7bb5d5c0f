package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/openalpha/radiant-lend/api/types"
)

// PositionHandler serves positions, health queries and user actions
type PositionHandler struct {
	service types.PositionService
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(service types.PositionService) *PositionHandler {
	return &PositionHandler{service: service}
}

// HandlePosition handles GET /v1/positions/{owner} and
// GET /v1/positions/{owner}/health
func (h *PositionHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/positions/")
	owner, endpoint := splitPath(path)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "Owner address required")
		return
	}

	switch endpoint {
	case "":
		position, err := h.service.GetPosition(r.Context(), owner)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, position)

	case "health":
		health, err := h.service.GetHealth(r.Context(), owner)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, health)

	default:
		writeError(w, http.StatusNotFound, "Endpoint not found")
	}
}

// HandleDeposit handles POST /v1/actions/deposit
func (h *PositionHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.Deposit)
}

// HandleWithdraw handles POST /v1/actions/withdraw
func (h *PositionHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.Withdraw)
}

// HandleBorrow handles POST /v1/actions/borrow
func (h *PositionHandler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.Borrow)
}

// HandleRepay handles POST /v1/actions/repay
func (h *PositionHandler) HandleRepay(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.Repay)
}

func (h *PositionHandler) handleAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, owner, assetID, amount string) (*types.ActionResponse, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req types.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Owner == "" || req.AssetID == "" || req.Amount == "" {
		writeError(w, http.StatusBadRequest, "owner, asset_id and amount are required")
		return
	}

	resp, err := fn(r.Context(), req.Owner, req.AssetID, req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
