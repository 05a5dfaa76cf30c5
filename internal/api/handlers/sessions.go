package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/api/middleware"
	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/flow"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/stepindex"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// SessionLister lists persisted sessions for an owner
type SessionLister interface {
	FindByOwner(ctx context.Context, ownerID string) ([]domain.PitchSession, error)
}

// SessionHandler serves the wizard HTTP surface
type SessionHandler struct {
	manager   *flow.Manager
	generator *generation.Service
	lister    SessionLister
}

// NewSessionHandler creates the session handler
func NewSessionHandler(manager *flow.Manager, generator *generation.Service, lister SessionLister) *SessionHandler {
	return &SessionHandler{
		manager:   manager,
		generator: generator,
		lister:    lister,
	}
}

// sessionView decorates a snapshot with its resolved wizard position
func sessionView(s *domain.PitchSession) gin.H {
	pos := stepindex.Resolve(s.CurrentStep, s.BlockCount)
	return gin.H{
		"session": s,
		"step": gin.H{
			"number":     s.CurrentStep,
			"total":      stepindex.TotalSteps(s.BlockCount),
			"section":    pos.Section,
			"blockIndex": pos.BlockIndex,
			"subStep":    pos.SubStep,
			"label":      stepindex.Label(s.CurrentStep, s.BlockCount),
		},
	}
}

// loadOwned resolves the path id and checks the caller owns the session.
// Foreign sessions read as not found rather than forbidden.
func (h *SessionHandler) loadOwned(c *gin.Context) (uuid.UUID, *domain.PitchSession, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, nil, apperrors.BadRequest("invalid session id")
	}

	session, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if session.OwnerID != middleware.OwnerID(c) {
		return uuid.Nil, nil, apperrors.RecordNotFound("session")
	}
	return id, session, nil
}

type createSessionRequest struct {
	RoleName        string `json:"roleName"`
	RoleLevel       string `json:"roleLevel"`
	RoleDescription string `json:"roleDescription"`
	YearsExperience int    `json:"yearsExperience"`
	WordLimit       int    `json:"wordLimit"`
	BlockCount      int    `json:"blockCount"`
}

// Create starts a new draft session
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apperrors.BadRequest("invalid request body"))
		return
	}

	session, err := h.manager.Create(c.Request.Context(), middleware.OwnerID(c), flow.CreateParams{
		RoleName:        req.RoleName,
		RoleLevel:       req.RoleLevel,
		RoleDescription: req.RoleDescription,
		YearsExperience: req.YearsExperience,
		WordLimit:       req.WordLimit,
		BlockCount:      req.BlockCount,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondCreated(c, sessionView(session))
}

// List returns the caller's sessions
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.lister.FindByOwner(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

// Get returns the current session state. A session reloaded mid-generation
// re-arms its job watcher as a side effect.
func (h *SessionHandler) Get(c *gin.Context) {
	_, session, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	if session.Status == domain.StatusGenerating {
		h.generator.Resume(c.Request.Context(), session)
	}

	RespondOK(c, sessionView(session))
}

// Advance validates the current step and moves forward
func (h *SessionHandler) Advance(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.manager.Advance(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

// Retreat moves back one step
func (h *SessionHandler) Retreat(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.manager.Retreat(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

type jumpRequest struct {
	Section string `json:"section" binding:"required"`
}

// Jump navigates to the first step of a visited section
func (h *SessionHandler) Jump(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	var req jumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apperrors.BadRequest("section is required"))
		return
	}

	session, err := h.manager.JumpTo(c.Request.Context(), id, stepindex.Section(req.Section))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

type setFieldRequest struct {
	Path  string `json:"path" binding:"required"`
	Value string `json:"value"`
}

// SetField applies one dotted-path field mutation
func (h *SessionHandler) SetField(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	var req setFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apperrors.BadRequest("path is required"))
		return
	}

	session, err := h.manager.SetField(c.Request.Context(), id, req.Path, req.Value)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

type blockCountRequest struct {
	BlockCount int `json:"blockCount" binding:"required"`
}

// SetBlockCount resizes the example blocks
func (h *SessionHandler) SetBlockCount(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	var req blockCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apperrors.BadRequest("blockCount is required"))
		return
	}

	session, err := h.manager.SetBlockCount(c.Request.Context(), id, req.BlockCount)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

// Confirm is the submission gate: full validation, then the generation job
func (h *SessionHandler) Confirm(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.generator.ConfirmAndSubmit(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

// Cancel abandons the outstanding generation job
func (h *SessionHandler) Cancel(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.generator.Cancel(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

type guidanceRequest struct {
	Refresh bool `json:"refresh"`
}

// Guidance requests (or refreshes) advisory guidance for the role details
func (h *SessionHandler) Guidance(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	var req guidanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, apperrors.BadRequest("invalid request body"))
			return
		}
	}

	session, err := h.generator.RequestGuidance(c.Request.Context(), id, req.Refresh)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

// Save flushes the session synchronously (save-and-exit)
func (h *SessionHandler) Save(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.manager.SaveAndExit(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

// Finalize moves a generated pitch to submitted
func (h *SessionHandler) Finalize(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.manager.Finalize(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessionView(session))
}

// GenerationStatus reports the watcher state for the UI poll
func (h *SessionHandler) GenerationStatus(c *gin.Context) {
	id, _, err := h.loadOwned(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	state, attempts, err := h.generator.Status(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"state":    state,
		"attempts": attempts,
	})
}
