package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tend/internal/model"
	"tend/internal/remote"
)

const (
	defaultHistoryLimit = 5
	maxHistoryLimit     = 365
)

type handlers struct {
	repo     *Repo
	serverID string
	log      *slog.Logger
}

// NewRouter assembles the authority's HTTP surface: bearer-authenticated
// CRUD plus complete and history under /api, mirroring the wire shapes the
// client decodes.
func NewRouter(repo *Repo, token, serverID string, log *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLog(log))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	h := &handlers{repo: repo, serverID: serverID, log: log}

	api := router.Group("/api", RequireBearer(token))
	api.GET("/health", h.health)
	api.GET("/events", h.list)
	api.POST("/events", h.create)
	api.GET("/events/:id", h.get)
	api.PUT("/events/:id", h.update)
	api.DELETE("/events/:id", h.delete)
	api.POST("/events/:id/complete", h.complete)
	api.GET("/events/:id/history", h.history)

	return router
}

func requestLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toResponse(e model.Event, today model.Date) remote.Event {
	resp := remote.Event{
		ID:             e.ID,
		Name:           e.Name,
		Tag:            optStr(e.Tag),
		Details:        optStr(e.Details),
		DueDate:        e.DueDate,
		FrequencyValue: e.FrequencyValue,
		FrequencyUnit:  e.FrequencyUnit,
		LastDone:       e.LastDone,
		IsOverdue:      e.Overdue(today),
		History:        []remote.HistoryEntry{},
	}
	for _, h := range e.History {
		resp.History = append(resp.History, remote.HistoryEntry{
			ID:         h.ID,
			EventID:    h.EventID,
			Action:     h.Action,
			ActionDate: h.ActionDate,
			Note:       optStr(h.Note),
		})
	}
	return resp
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return 0, false
	}
	return id, true
}

func historyLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("history_limit", strconv.Itoa(defaultHistoryLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 || limit > maxHistoryLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "history_limit must be 0-365"})
		return 0, false
	}
	return limit, true
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, remote.Health{
		Status:     "ok",
		ServerTime: time.Now().UnixMilli(),
		ServerID:   h.serverID,
	})
}

func (h *handlers) list(c *gin.Context) {
	limit, ok := historyLimit(c)
	if !ok {
		return
	}
	events, err := h.repo.ListEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	today := model.Today()
	responses := make([]remote.Event, 0, len(events))
	for _, e := range events {
		responses = append(responses, toResponse(e, today))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *handlers) create(c *gin.Context) {
	var payload remote.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields := model.EventFields{
		Name:           payload.Name,
		DueDate:        payload.DueDate,
		FrequencyValue: payload.FrequencyValue,
		FrequencyUnit:  payload.FrequencyUnit,
	}
	if payload.Tag != nil {
		fields.Tag = *payload.Tag
	}
	if payload.Details != nil {
		fields.Details = *payload.Details
	}

	event, err := h.repo.CreateEvent(c.Request.Context(), fields)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toResponse(event, model.Today()))
}

func (h *handlers) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, ok := historyLimit(c)
	if !ok {
		return
	}
	event, err := h.repo.GetEvent(c.Request.Context(), id, limit)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(event, model.Today()))
}

type updateRequest struct {
	Name           *string              `json:"name"`
	Tag            *string              `json:"tag"`
	Details        *string              `json:"details"`
	DueDate        *model.Date          `json:"due_date"`
	FrequencyValue *int                 `json:"frequency_value"`
	FrequencyUnit  *model.FrequencyUnit `json:"frequency_unit"`
}

func (h *handlers) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	update := EventUpdate{
		Name:           req.Name,
		Tag:            req.Tag,
		Details:        req.Details,
		DueDate:        req.DueDate,
		FrequencyValue: req.FrequencyValue,
		FrequencyUnit:  req.FrequencyUnit,
	}
	if update.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields provided for update"})
		return
	}

	event, err := h.repo.UpdateEvent(c.Request.Context(), id, update)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event.History, err = h.repo.History(c.Request.Context(), id, defaultHistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(event, model.Today()))
}

func (h *handlers) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	err := h.repo.DeleteEvent(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) complete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// The body is optional: absent means "completed today".
	var payload remote.CompletePayload
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.repo.CompleteEvent(c.Request.Context(), id, payload.DoneDate)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	event.History, err = h.repo.History(c.Request.Context(), id, defaultHistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(event, model.Today()))
}

func (h *handlers) history(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-1000"})
			return
		}
		limit = parsed
	}

	if _, err := h.repo.GetEvent(c.Request.Context(), id, 0); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.repo.History(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	responses := make([]remote.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, remote.HistoryEntry{
			ID:         entry.ID,
			EventID:    entry.EventID,
			Action:     entry.Action,
			ActionDate: entry.ActionDate,
			Note:       optStr(entry.Note),
		})
	}
	c.JSON(http.StatusOK, responses)
}
