package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bloomboard/internal/codec"
	"bloomboard/internal/model"
	"bloomboard/internal/service/feedback"
	"bloomboard/internal/service/habit"
	"bloomboard/pkg/logger"
)

type HabitHandler struct {
	store  *habit.Store
	logger *zap.Logger
}

func NewHabitHandler(store *habit.Store, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{store: store, logger: logger}
}

// parseID reads the habit id path parameter.
func (h *HabitHandler) parseID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.logger.Warn("Invalid habit id", zap.String("id", raw), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid habit id"})
		return 0, false
	}
	return id, true
}

func (h *HabitHandler) views(habits []model.Habit) []model.HabitView {
	now := h.store.Now().Time
	out := make([]model.HabitView, 0, len(habits))
	for _, hb := range habits {
		out = append(out, model.NewHabitView(hb, now))
	}
	return out
}

// ListHabits handles GET /habits?filter=all|growing|bloomed
func (h *HabitHandler) ListHabits(c *gin.Context) {
	mode := habit.ParseFilterMode(c.Query("filter"))
	habits := h.views(h.store.List(mode))

	c.JSON(http.StatusOK, gin.H{
		"filter": mode,
		"count":  len(habits),
		"habits": habits,
	})
}

// CreateHabit handles POST /habits
func (h *HabitHandler) CreateHabit(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
		Desc  string `json:"desc"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	created, ok := h.store.Create(c.Request.Context(), req.Title, req.Desc)
	if !ok {
		logger.WithTrace(c.Request.Context(), h.logger).Info("CreateHabit: blank title ignored")
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"created": true,
		"habit":   model.NewHabitView(created, h.store.Now().Time),
	})
}

func (h *HabitHandler) GetHabit(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	found, ok := h.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	c.JSON(http.StatusOK, model.NewHabitView(found, h.store.Now().Time))
}

// WaterHabit handles POST /habits/:id/water
func (h *HabitHandler) WaterHabit(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	watered, ev, ok := h.store.Advance(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit":    model.NewHabitView(watered, h.store.Now().Time),
		"feedback": ev,
	})
}

// DeleteHabit handles DELETE /habits/:id
func (h *HabitHandler) DeleteHabit(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if !h.store.Remove(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetFeedback handles GET /habits/:id/feedback
func (h *HabitHandler) GetFeedback(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	events := h.store.Feedback(id)
	if events == nil {
		events = []feedback.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *HabitHandler) GetSelection(c *gin.Context) {
	selected, ok := h.store.Selected()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"selected": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": model.NewHabitView(selected, h.store.Now().Time)})
}

func (h *HabitHandler) PutSelection(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if !h.store.Select(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	h.GetSelection(c)
}

func (h *HabitHandler) ClearSelection(c *gin.Context) {
	h.store.ClearSelection()
	c.Status(http.StatusNoContent)
}

// Export handles GET /export and returns the shareable "#bb=" fragment.
func (h *HabitHandler) Export(c *gin.Context) {
	fragment, err := codec.Fragment(h.store.List(habit.FilterAll))
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Export: failed to encode habits", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export habits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fragment": fragment})
}

// Mechanics handles GET /mechanics
func (h *HabitHandler) Mechanics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"totalSteps": habit.TotalSteps,
		"increment":  habit.Increment,
		"label":      habit.IncrementLabel(),
		"maxScore":   model.MaxScore,
	})
}
