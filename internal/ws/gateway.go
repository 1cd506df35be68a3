package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"nexus-chat/internal/auth"
	"nexus-chat/internal/chat"
	"nexus-chat/internal/models"
	"nexus-chat/internal/observability"
)

// GatewayHandler authenticates websocket connections and runs the event loop
// for joinChat / newMessage client events. All message sends delegate to the
// chat service, so this path shares validation and persistence with REST.
type GatewayHandler struct {
	hub      *Hub
	service  *chat.Service
	verifier *auth.Verifier
	upgrader websocket.Upgrader
}

// NewGatewayHandler constructs a GatewayHandler. allowedOrigins bounds the
// handshake Origin check; an empty list allows any origin.
func NewGatewayHandler(hub *Hub, service *chat.Service, verifier *auth.Verifier, allowedOrigins []string) *GatewayHandler {
	return &GatewayHandler{
		hub:      hub,
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

// Handle upgrades the connection after token verification and serves client
// events until disconnect. Unauthenticated connections are refused before the
// upgrade.
func (h *GatewayHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("nexus-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishConnEvent(ctx, "ws_connect", info, "")

	go h.readLoop(ctx, conn, info)
}

// bearerToken pulls the credential from the Authorization header or, for
// browser websocket clients that cannot set headers, the token query param.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func (h *GatewayHandler) readLoop(handshakeCtx context.Context, conn *websocket.Conn, info ConnInfo) {
	// The request context dies with the HTTP handler; loop work gets its
	// own context.
	ctx := context.Background()

	var closeReason string
	defer func() {
		h.hub.RemoveConnection(conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishConnEvent(handshakeCtx, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishConnEvent(handshakeCtx, "ws_error", info, closeReason)
			}
			return
		}

		var event models.ClientEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("websocket bad event from user %d: %v", info.UserID, err)
			continue
		}

		switch event.Type {
		case "joinChat":
			h.handleJoin(ctx, conn, info, event.ThreadID)
		case "newMessage":
			h.handleNewMessage(ctx, info, event)
		default:
			log.Printf("websocket unknown event type %q from user %d", event.Type, info.UserID)
		}
	}
}

func (h *GatewayHandler) handleJoin(ctx context.Context, conn *websocket.Conn, info ConnInfo, threadID int) {
	if err := h.service.Authorize(ctx, threadID, info.UserID); err != nil {
		// No rejection event is defined for the room protocol; the join
		// is simply not performed.
		log.Printf("websocket join refused thread=%d user=%d: %v", threadID, info.UserID, err)
		observability.IncWSEvent("join_refused")
		return
	}
	h.hub.Join(threadID, conn, info)
	observability.IncWSEvent("join")
}

func (h *GatewayHandler) handleNewMessage(ctx context.Context, info ConnInfo, event models.ClientEvent) {
	if _, err := h.service.Append(ctx, event.ThreadID, info.UserID, event.Text); err != nil {
		// Persistence failed or the send was invalid; the client sees no
		// confirmation event and reconciles via the history endpoint.
		log.Printf("websocket message rejected thread=%d user=%d: %v", event.ThreadID, info.UserID, err)
		observability.IncWSEvent("message_rejected")
	}
}

func (h *GatewayHandler) publishConnEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	durationMS := int64(0)
	if name != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, "ws_events.threads", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
