package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"resonate/chat-service/internal/auth"
	"resonate/chat-service/internal/errs"
	"resonate/chat-service/internal/models"
	"resonate/chat-service/internal/observability"
	"resonate/chat-service/internal/repositories"
)

// ThreadWebSocketHandler serves the live connection endpoint for a thread.
type ThreadWebSocketHandler struct {
	registry    *Registry
	threadRepo  repositories.ThreadRepository
	messageRepo repositories.MessageRepository
	jwtSecret   []byte
}

// NewThreadWebSocketHandler constructs a ThreadWebSocketHandler.
func NewThreadWebSocketHandler(registry *Registry, threadRepo repositories.ThreadRepository, messageRepo repositories.MessageRepository, jwtSecret []byte) *ThreadWebSocketHandler {
	return &ThreadWebSocketHandler{
		registry:    registry,
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		jwtSecret:   jwtSecret,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, verifies thread membership, upgrades the
// connection and joins it to the thread's broadcast group. Each connection
// gets one reader goroutine that blocks only on the next inbound frame.
func (h *ThreadWebSocketHandler) Handle(c *gin.Context) {
	threadID, err := strconv.Atoi(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	ctx, span := otel.Tracer("resonate-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	isMember, err := h.threadRepo.IsParticipant(ctx, threadID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify thread access"})
		return
	}
	if !isMember {
		c.JSON(http.StatusForbidden, gin.H{"error": errs.ErrAccessDenied.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.registry.Join(threadID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycleEvent(ctx, "ws_connect", threadID, info, "")

	// The reader outlives this handler; the request context is canceled the
	// moment Handle returns, so detach it while keeping trace correlation.
	go h.readLoop(context.WithoutCancel(ctx), conn, threadID, info)
}

// readLoop consumes inbound frames until the connection dies, persisting each
// valid message before broadcasting it. Membership bookkeeping happens here on
// the way out so the group stays accurate the moment a peer disconnects.
func (h *ThreadWebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, threadID int, info ConnInfo) {
	var closeReason string
	defer func() {
		h.registry.Leave(threadID, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycleEvent(ctx, "ws_disconnect", threadID, info, closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycleEvent(ctx, "ws_error", threadID, info, closeReason)
			}
			return
		}

		var frame models.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Malformed payload fails this one frame, not the connection.
			logrus.Warnf("ws malformed frame thread=%d conn=%s: %v", threadID, info.ConnID, err)
			observability.IncWSEvent("ws_bad_frame")
			continue
		}
		content := strings.TrimSpace(frame.Message)
		if content == "" {
			observability.IncWSEvent("ws_bad_frame")
			continue
		}

		// Persist first, then notify. The store is the source of truth; a
		// broadcast failure leaves the message durable and visible on the
		// next page load.
		msg, err := h.messageRepo.AppendMessage(ctx, threadID, info.UserID, content)
		if err != nil {
			logrus.Errorf("ws append message thread=%d: %v", threadID, err)
			observability.IncWSEvent("ws_store_error")
			continue
		}
		observability.IncWSEvent("ws_message")
		h.registry.Publish(threadID, msg)
	}
}

func (h *ThreadWebSocketHandler) publishLifecycleEvent(ctx context.Context, name string, threadID int, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, messageEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"thread_id":   threadID,
			"conn_id":     info.ConnID,
			"user_id":     info.UserID,
			"ip":          info.IP,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

// authenticate accepts the token from the Authorization header or, for
// browser websocket clients that cannot set headers, a token query parameter.
func (h *ThreadWebSocketHandler) authenticate(c *gin.Context) (int, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	parts := strings.SplitN(token, " ", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid token")
	}
	claims, err := auth.VerifyToken(parts[1], h.jwtSecret)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
