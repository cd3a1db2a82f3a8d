package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

// assetsResponse is the catalogue endpoint payload.
type assetsResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// loginRequest is the credential-login body.
type loginRequest struct {
	Token string `json:"token" validate:"required"`
}

// loginResponse is the credential-login success payload.
type loginResponse struct {
	Data    any    `json:"data"`
	Token   string `json:"token"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// errorResponse is the generic 500-class payload.
type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// handleAssets serves the full instrument catalogue.
func (g *Gateway) handleAssets(w http.ResponseWriter, r *http.Request) {
	data, err := g.catalog.ActiveSymbols(r.Context())
	if err != nil {
		g.logger.Warn("catalogue fetch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, assetsResponse{
			Status:  0,
			Message: "Internal Server Error",
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, assetsResponse{
		Status:  1,
		Message: "Assets retrieved successfully",
		Data:    data,
	})
}

// handleLogin authorizes a caller-supplied token and returns the
// normalized account profile.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal Server Error", Status: 0})
		return
	}
	if err := g.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal Server Error", Status: 0})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.LoginTimeout)
	defer cancel()

	profile, err := g.account.Login(ctx, req.Token)
	if err != nil {
		g.logger.Warn("login failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error(), Status: 0})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Data:    profile,
		Token:   req.Token,
		Message: "Virtual account login successful!",
		Status:  1,
	})
}

// handleHealth reports process liveness and active feed sessions.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	symbols := g.feed.ActiveSymbols()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"feed_symbols": symbols,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
