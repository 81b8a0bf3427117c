package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/http/handlers/common"
	"github.com/goodnight000/kittycourt-backend/internal/interface/http/response"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

// CourtService - операции суда, доступные по REST.
type CourtService interface {
	Dispatch(ctx context.Context, id courtroom.Identity, action courtroom.Action) (*courtroom.StateSync, error)
	FetchState(ctx context.Context, id courtroom.Identity) (*courtroom.StateSync, error)
	GetCase(ctx context.Context, id courtroom.Identity, caseID uuid.UUID) (*entity.Case, error)
}

// CourtHandler - REST-транспорт суда, запасной к сокету.
type CourtHandler struct {
	court CourtService
}

// NewCourtHandler создаёт новый хэндлер.
func NewCourtHandler(court CourtService) *CourtHandler {
	return &CourtHandler{court: court}
}

// Action обрабатывает POST /api/court/actions/:action.
func (h *CourtHandler) Action(c *gin.Context) {
	id, err := common.CurrentIdentity(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	actionType, err := courtroom.ParseActionType(c.Param("action"))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, err := common.ReadJSONBody(c)
	if err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}

	state, err := h.court.Dispatch(c.Request.Context(), id, courtroom.Action{Type: actionType, Payload: payload})
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}

	response.Success(c, state)
}

// State обрабатывает GET /api/court/state.
func (h *CourtHandler) State(c *gin.Context) {
	id, err := common.CurrentIdentity(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	state, err := h.court.FetchState(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}

	response.Success(c, state)
}

// GetCase обрабатывает GET /api/court/cases/:id.
func (h *CourtHandler) GetCase(c *gin.Context) {
	id, err := common.CurrentIdentity(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "некорректный id дела")
		return
	}

	record, err := h.court.GetCase(c.Request.Context(), id, caseID)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}

	response.Success(c, record)
}
