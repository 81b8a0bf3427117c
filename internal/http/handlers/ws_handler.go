package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/goodnight000/kittycourt-backend/internal/http/handlers/common"
	"github.com/goodnight000/kittycourt-backend/internal/http/middleware"
	"github.com/goodnight000/kittycourt-backend/internal/interface/http/response"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/service"
	"github.com/goodnight000/kittycourt-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений.
type WSHandler struct {
	hub          *ws.Hub
	tokenManager *service.TokenManager
	upgrader     websocket.Upgrader
	actionRate   rate.Limit
	actionBurst  int
}

// NewWSHandler создаёт новый хэндлер. actionsPerSecond и burst задают
// лимит входящих действий на одно подключение.
func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager, actionsPerSecond float64, burst int) *WSHandler {
	if actionsPerSecond <= 0 {
		actionsPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &WSHandler{
		hub:          hub,
		tokenManager: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		actionRate:  rate.Limit(actionsPerSecond),
		actionBurst: burst,
	}
}

// Handle обслуживает GET /api/ws?token=...
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		rawToken, _ = middleware.BearerToken(c)
	}
	if rawToken == "" {
		response.Unauthorized(c, "access токен обязателен")
		return
	}

	identity, err := h.tokenManager.ParseAccess(rawToken)
	if err != nil || identity.UserID == uuid.Nil {
		response.Unauthorized(c, "невалидный access токен")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту.
		logger.Log.WithField("user_id", identity.UserID).WithError(err).Warn("ws: upgrade не удался")
		return
	}

	client := ws.NewClient(conn, h.hub, common.ToCourtIdentity(identity), rate.NewLimiter(h.actionRate, h.actionBurst))
	h.hub.Register(client)

	client.Run(c.Request.Context())
}
