package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/scoring"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type shareRequestPayload struct {
	Kind         string `json:"kind" binding:"required"`
	EntityID     int64  `json:"entity_id" binding:"required,gt=0"`
	SharedWithID string `json:"shared_with_id" binding:"required"`
	Permission   string `json:"permission" binding:"required,oneof=view edit"`
}

type linkRequestPayload struct {
	LinkedEntityID int64 `json:"linked_entity_id" binding:"required,gt=0"`
}

type entitiesResponsePayload struct {
	Kind     sharing.Kind            `json:"kind"`
	Entities []tracker.EntitySummary `json:"entities"`
}

type changesResponsePayload struct {
	Changes []tracker.ShareChange `json:"changes"`
}

func (h *httpHandler) handleListEntities(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	entities, err := h.tracker.ListEntities(c.Request.Context(), c.GetString(userIDContextKey), kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entitiesResponsePayload{Kind: kind, Entities: entities})
}

func (h *httpHandler) handleDeleteEntity(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	entityID, ok := idParam(c, "id")
	if !ok {
		return
	}
	changes, err := h.tracker.DeleteEntity(c.Request.Context(), c.GetString(userIDContextKey), kind, entityID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	for _, change := range changes {
		h.publishChange(change)
	}
	c.JSON(http.StatusOK, changesResponsePayload{Changes: changes})
}

func (h *httpHandler) handleMatchOutcome(c *gin.Context) {
	matchID, ok := idParam(c, "id")
	if !ok {
		return
	}
	result, err := h.tracker.MatchOutcome(c.Request.Context(), c.GetString(userIDContextKey), matchID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleFinalizeMatch(c *gin.Context) {
	matchID, ok := idParam(c, "id")
	if !ok {
		return
	}
	result, err := h.tracker.FinalizeMatch(c.Request.Context(), c.GetString(userIDContextKey), matchID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGameInsights(c *gin.Context) {
	gameID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var focus *sharing.Ref
	if raw := strings.TrimSpace(c.Query("player")); raw != "" {
		ref, err := sharing.ParseRef(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_player"})
			return
		}
		focus = &ref
	}
	report, err := h.tracker.GameInsights(c.Request.Context(), c.GetString(userIDContextKey), gameID, focus)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleShareEntity(c *gin.Context) {
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind, err := sharing.ParseKind(request.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind"})
		return
	}
	change, err := h.tracker.ShareEntity(c.Request.Context(), c.GetString(userIDContextKey), tracker.ShareRequest{
		Kind:         kind,
		EntityID:     request.EntityID,
		SharedWithID: request.SharedWithID,
		Permission:   sharing.Permission(request.Permission),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publishChange(change)
	c.JSON(http.StatusOK, change)
}

func (h *httpHandler) handleLinkShare(c *gin.Context) {
	shareID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var request linkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	change, err := h.tracker.LinkShare(c.Request.Context(), c.GetString(userIDContextKey), shareID, request.LinkedEntityID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publishChange(change)
	c.JSON(http.StatusOK, change)
}

func (h *httpHandler) handleUnlinkShare(c *gin.Context) {
	shareID, ok := idParam(c, "id")
	if !ok {
		return
	}
	change, err := h.tracker.UnlinkShare(c.Request.Context(), c.GetString(userIDContextKey), shareID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publishChange(change)
	c.JSON(http.StatusOK, change)
}

func (h *httpHandler) handleRevokeShare(c *gin.Context) {
	shareID, ok := idParam(c, "id")
	if !ok {
		return
	}
	change, err := h.tracker.RevokeShare(c.Request.Context(), c.GetString(userIDContextKey), shareID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publishChange(change)
	c.JSON(http.StatusOK, change)
}

// publishChange notifies the share recipient; no-op mutations stay silent.
func (h *httpHandler) publishChange(change tracker.ShareChange) {
	if !change.Changed {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:    change.RecipientID,
		EventType: RealtimeEventShareChanged,
		ShareID:   change.ShareID,
		Kind:      string(change.Kind),
		Action:    string(change.Action),
		Timestamp: h.clock().UTC(),
	})
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	code := "internal_error"
	var serviceErr *tracker.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrNotVisible):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, sharing.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrInvalidShare),
		errors.Is(err, tracker.ErrInvalidLink),
		errors.Is(err, scoring.ErrInvalidRoundConfig),
		errors.Is(err, scoring.ErrInvalidWinCondition),
		errors.Is(err, scoring.ErrInvalidRoundsScore):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func kindParam(c *gin.Context) (sharing.Kind, bool) {
	kind, err := sharing.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind"})
		return "", false
	}
	return kind, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}
