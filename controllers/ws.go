package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"BranchChat/middleware"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
	svc "BranchChat/pkg/services"
	tokenstore "BranchChat/pkg/token"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced on the HTTP routes; the socket authenticates by token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConversationEvents streams change events for one conversation.
//
//	GET /ws/conversations/:id?token=JWT
//	<- {"type": "message_appended", "conversation_id": ..., "version_id": ..., "data": {...}, "at": ...}
//
// Clients only read; anything they send is discarded.
func ConversationEvents(convs *svc.ConversationService, hub *realtime.Hub, secret string, revoked *tokenstore.Store, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing token query"})
			return
		}
		claims, err := middleware.ParseToken(tokenStr, secret, revoked)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
			return
		}
		convID := c.Param("id")
		if _, err := convs.Get(c.Request.Context(), claims.UserID, convID); err != nil {
			writeError(c, log, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("ws upgrade failed", "conversation_id", convID, "error", err)
			return
		}
		defer conn.Close()

		sub, cancel := hub.Subscribe(convID)
		defer cancel()
		log.Debug("ws subscribed", "conversation_id", convID, "subscription", sub.ID, "user_id", claims.UserID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(4096)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-sub.C:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
						time.Now().Add(wsWriteWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
