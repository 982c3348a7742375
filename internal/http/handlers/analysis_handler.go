// Analysis HTTP handlers.
//
// This file exposes the audit lifecycle over REST:
//   - POST /conversations/{id}/analyses  (start an audit, async)
//   - GET  /conversations/{id}/analyses  (list a conversation's audits)
//   - GET  /analyses/{id}                (poll one audit)
//
// Starting an audit returns 202 Accepted with the pending record; progress
// and results land in the conversation transcript (and the live stream) as
// the engine advances.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marketlens/go-insight-backend/internal/services"
)

// StartAnalysisRequest is the JSON payload for starting an audit.
type StartAnalysisRequest struct {
	// Domain is the hostname to audit, e.g. "example.com".
	Domain string `json:"domain" binding:"required" example:"example.com"`
}

// StartAnalysis godoc
// @ID          startAnalysis
// @Summary     Start a marketing audit
// @Description Records a pending analysis for the conversation and launches the audit pipeline in the background. Progress and the final report are appended to the transcript.
// @Tags        Analyses
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Conversation ID (UUID)" format(uuid)
// @Param       body  body  handlers.StartAnalysisRequest  true  "Domain to audit"
// @Success     202  {object} domain.Analysis
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/analyses [post]
func (h *Handlers) StartAnalysis(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	var req StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Domain) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "domain required")
		return
	}

	an, err := h.analysisSvc.Start(c.Request.Context(), id, req.Domain, false)
	if err != nil {
		if errors.Is(err, services.ErrEmptyDomain) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeAnalysisFailed, err.Error())
		return
	}
	ok(c, http.StatusAccepted, an)
}

// ListAnalyses godoc
// @ID          listAnalyses
// @Summary     List a conversation's audits
// @Tags        Analyses
// @Produce     json
// @Param       id  path  string  true  "Conversation ID (UUID)" format(uuid)
// @Success     200  {array}  domain.Analysis
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/analyses [get]
func (h *Handlers) ListAnalyses(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	list, err := h.analysisSvc.List(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, list)
}

// GetAnalysis godoc
// @ID          getAnalysis
// @Summary     Poll one audit
// @Description Returns the analysis record including status, progress, and (when completed) the structured results.
// @Tags        Analyses
// @Produce     json
// @Param       id  path  string  true  "Analysis ID (UUID)" format(uuid)
// @Success     200  {object} domain.Analysis
// @Failure     404  {object} handlers.ErrorResponse "Analysis not found"
// @Router      /analyses/{id} [get]
func (h *Handlers) GetAnalysis(c *gin.Context) {
	id, okID := pathUUID(c, "id")
	if !okID {
		return
	}
	an, err := h.analysisSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrAnalysisNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "analysis not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, an)
}
