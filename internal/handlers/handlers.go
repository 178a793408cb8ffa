package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rankboard/leaderboard-backend/internal/broadcast"
	"github.com/rankboard/leaderboard-backend/internal/claims"
	"github.com/rankboard/leaderboard-backend/internal/ranking"
	"github.com/rankboard/leaderboard-backend/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type Handler struct {
	ledger    *store.Ledger
	engine    *ranking.Engine
	processor *claims.Processor
	hub       *broadcast.Hub
}

func New(ledger *store.Ledger, engine *ranking.Engine, processor *claims.Processor, hub *broadcast.Hub) *Handler {
	return &Handler{ledger: ledger, engine: engine, processor: processor, hub: hub}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/users", h.listUsers)
	r.POST("/api/users", h.addUser)
	r.POST("/api/claim-points", h.claimPoints)
	r.GET("/api/points-history", h.recentHistory)
	r.GET("/api/points-history/:userId", h.userHistory)
	r.GET("/api/stream", h.streamLeaderboard)
	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.ledger.ListUsers(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("list users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, users)
}

type addUserReq struct {
	Name string `json:"name"`
}

func (h *Handler) addUser(c *gin.Context) {
	var req addUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.ledger.CreateUser(ctx, req.Name)
	switch {
	case errors.Is(err, store.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User name is required"})
		return
	case errors.Is(err, store.ErrDuplicateName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
		return
	case err != nil:
		logrus.WithError(err).Error("create user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	snap, err := h.engine.RecomputeRanks(ctx)
	if err != nil {
		logrus.WithError(err).Error("rank recomputation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	h.hub.Broadcast(snap)

	c.JSON(http.StatusCreated, user)
}

type claimPointsReq struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *Handler) claimPoints(c *gin.Context) {
	var req claimPointsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}

	result, snap, err := h.processor.Claim(c.Request.Context(), req.UserID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case err != nil:
		logrus.WithError(err).Error("claim failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	h.hub.Broadcast(snap)

	c.JSON(http.StatusOK, result)
}

func (h *Handler) recentHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	awards, err := h.ledger.ListRecentAwards(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("list history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, awards)
}

func (h *Handler) userHistory(c *gin.Context) {
	awards, err := h.ledger.ListAwardsForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		logrus.WithError(err).Error("list user history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, awards)
}

// streamLeaderboard pushes the ranked list to the client over SSE: one
// snapshot on connect, then an event per standings change. Heartbeat
// comments keep idle connections from being reaped by proxies.
func (h *Handler) streamLeaderboard(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	send := func(users interface{}) bool {
		payload, err := json.Marshal(users)
		if err != nil {
			return false
		}
		if _, err := c.Writer.Write([]byte("event: leaderboard\ndata: ")); err != nil {
			return false
		}
		if _, err := c.Writer.Write(payload); err != nil {
			return false
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	users, err := h.ledger.ListUsers(c.Request.Context())
	if err != nil || !send(users) {
		return
	}

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ranked, open := <-sub.Updates():
			if !open || !send(ranked) {
				return
			}
		case <-heartbeat.C:
			if _, err := c.Writer.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
