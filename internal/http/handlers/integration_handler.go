// Integration HTTP handlers.
//
// This file exposes the session-scoped OAuth handshake:
//   - POST /integrations/{provider}/auth-url    (mint the provider consent URL)
//   - GET  /integrations/{provider}/callback    (OAuth redirect target)
//   - GET  /integrations/{provider}/status      (server-authoritative state)
//   - POST /integrations/{provider}/disconnect  (confirmed teardown)
//
// The browser session id rides the handshake as the OAuth state parameter,
// so the callback can attribute the grant to the right session after the
// full-page redirect. The server is the source of truth for connection
// state; clients reconcile against /status.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marketlens/go-insight-backend/internal/services"
)

// AuthURLRequest carries the session binding for an auth-url mint.
type AuthURLRequest struct {
	SessionID string `json:"session_id" binding:"required" example:"4d0f3f7e-7b57-4e7c-9f33-2d6c1a9b8f10"`
}

// AuthURLResponse returns the provider consent URL to redirect to.
type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

// StatusResponse is the server-authoritative connection state for a session.
// SessionID echoes the effective session id: callers that arrive without one
// receive a freshly minted id to adopt.
type StatusResponse struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"session_id"`
}

// DisconnectRequest carries the confirmed teardown payload. Confirm must be
// true; unconfirmed requests are accepted but change nothing.
type DisconnectRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Confirm   bool   `json:"confirm"`
}

// AuthURL godoc
// @ID          integrationAuthURL
// @Summary     Mint a provider consent URL
// @Description Builds the OAuth authorization URL for the provider, embedding the session id as the state parameter, and pre-registers the pending connection.
// @Tags        Integrations
// @Accept      json
// @Produce     json
// @Param       provider  path  string  true  "Provider key, e.g. google-analytics"
// @Param       body      body  handlers.AuthURLRequest  true  "Session binding"
// @Success     200  {object} handlers.AuthURLResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Unknown provider"
// @Router      /integrations/{provider}/auth-url [post]
func (h *Handlers) AuthURL(c *gin.Context) {
	provider := c.Param("provider")
	var req AuthURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}

	u, err := h.intSvc.AuthURL(c.Request.Context(), provider, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownProvider):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown provider")
		case errors.Is(err, services.ErrMissingSession):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAuthURLFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, AuthURLResponse{AuthURL: u})
}

// Callback godoc
// @ID          integrationCallback
// @Summary     OAuth redirect target
// @Description Marks the session connected using the state parameter carried through the provider redirect, then 302s back to the app with the provider marker appended.
// @Tags        Integrations
// @Param       provider  path   string  true  "Provider key"
// @Param       state     query  string  true  "Session id echoed by the provider"
// @Param       code      query  string  false "Authorization code (unused by the stub exchange)"
// @Success     302  {string} string "Found"
// @Failure     400  {object} handlers.ErrorResponse "Missing state"
// @Router      /integrations/{provider}/callback [get]
func (h *Handlers) Callback(c *gin.Context) {
	provider := c.Param("provider")
	state := c.Query("state")
	if strings.TrimSpace(state) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing state parameter")
		return
	}

	target, err := h.intSvc.HandleCallback(c.Request.Context(), provider, state)
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown provider")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Status godoc
// @ID          integrationStatus
// @Summary     Server-authoritative connection state
// @Description Returns whether the session is connected to the provider. Requests without a session id get connected=false plus a freshly minted session id to adopt.
// @Tags        Integrations
// @Produce     json
// @Param       provider    path   string  true   "Provider key"
// @Param       session_id  query  string  false  "Session id"
// @Success     200  {object} handlers.StatusResponse
// @Failure     404  {object} handlers.ErrorResponse "Unknown provider"
// @Router      /integrations/{provider}/status [get]
func (h *Handlers) Status(c *gin.Context) {
	provider := c.Param("provider")
	connected, sid, err := h.intSvc.Status(c.Request.Context(), provider, c.Query("session_id"))
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown provider")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeStatusFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, StatusResponse{Connected: connected, SessionID: sid})
}

// Disconnect godoc
// @ID          integrationDisconnect
// @Summary     Tear down a connection
// @Description Disconnects the session from the provider. Requires confirm=true; unconfirmed requests are a 204 no-op.
// @Tags        Integrations
// @Accept      json
// @Param       provider  path  string  true  "Provider key"
// @Param       body      body  handlers.DisconnectRequest  true  "Confirmed teardown"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Connection not found"
// @Router      /integrations/{provider}/disconnect [post]
func (h *Handlers) Disconnect(c *gin.Context) {
	provider := c.Param("provider")
	var req DisconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}

	err := h.intSvc.Disconnect(c.Request.Context(), provider, req.SessionID, req.Confirm)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownProvider):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown provider")
		case errors.Is(err, services.ErrConnectionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "connection not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDisconnectFailed, err.Error())
		}
		return
	}
	noContent(c)
}
