package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"storytrain/internal/models"
	"storytrain/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// StoryHandler обрабатывает HTTP запросы сервиса историй.
type StoryHandler struct {
	engine service.NarrativeEngine
	logger *zap.Logger
}

// NewStoryHandler создает новый StoryHandler.
func NewStoryHandler(engine service.NarrativeEngine, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		engine: engine,
		logger: logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты сервиса историй.
func (h *StoryHandler) RegisterRoutes(e *echo.Echo) {
	sessions := e.Group("/session")
	{
		sessions.POST("/start", h.startSession)
		sessions.POST("/:id/continue", h.continueSession)
		sessions.GET("/:id", h.getSession)
	}

	e.POST("/block", h.generateBlock)
	e.GET("/block/:id", h.getBlock)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *StoryHandler) startSession(c echo.Context) error {
	session, block, err := h.engine.StartSession(c.Request().Context())
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, SessionStartResponse{
		SessionID: session.ID.String(),
		Block:     toBlockResponse(block),
	})
}

func (h *StoryHandler) continueSession(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Такой сессии не может существовать
		return h.handleServiceError(c, fmt.Errorf("%w: malformed id '%s'", models.ErrSessionNotFound, c.Param("id")))
	}

	var req ContinueSessionRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Invalid continue request body", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "choice must be 1 to 32 characters"})
	}

	block, err := h.engine.ContinueSession(c.Request().Context(), sessionID, req.Choice)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toBlockResponse(block))
}

func (h *StoryHandler) getSession(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, fmt.Errorf("%w: malformed id '%s'", models.ErrSessionNotFound, c.Param("id")))
	}
	session, err := h.engine.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(session))
}

func (h *StoryHandler) generateBlock(c echo.Context) error {
	block, err := h.engine.GenerateBlock(c.Request().Context())
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toBlockResponse(block))
}

func (h *StoryHandler) getBlock(c echo.Context) error {
	blockID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || blockID <= 0 {
		return c.JSON(http.StatusBadRequest, APIError{Message: "invalid block id"})
	}
	block, err := h.engine.GetBlock(c.Request().Context(), blockID)
	if err != nil {
		// Здесь отсутствие блока - обычный 404, а не нарушение целостности
		if errors.Is(err, models.ErrBlockNotFound) {
			return c.JSON(http.StatusNotFound, APIError{Message: "block not found"})
		}
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toBlockResponse(block))
}

// handleServiceError maps engine errors to HTTP responses.
func (h *StoryHandler) handleServiceError(c echo.Context, err error) error {
	var status int
	var message string

	switch {
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "session not found"
	case errors.Is(err, models.ErrInvalidChoice):
		status, message = http.StatusBadRequest, "choice is not one of the current block options"
	case errors.Is(err, models.ErrGenerationFailed):
		status, message = http.StatusServiceUnavailable, "story generation failed, please try again"
	case errors.Is(err, models.ErrSessionBusy), errors.Is(err, models.ErrConcurrentTurn):
		status, message = http.StatusConflict, "another turn is in progress for this session"
	case errors.Is(err, models.ErrBlockNotFound):
		h.logger.Error("Story data integrity violation", zap.Bool("integrity_alarm", true), zap.Error(err))
		status, message = http.StatusInternalServerError, "internal server error"
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		status, message = http.StatusInternalServerError, "internal server error"
	}

	return c.JSON(status, APIError{Message: message})
}
