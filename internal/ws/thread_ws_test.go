package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"resonate/chat-service/internal/auth"
	"resonate/chat-service/internal/mocks"
	"resonate/chat-service/internal/models"
)

func dialThread(t *testing.T, handler *ThreadWebSocketHandler, threadID int, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/chat/:thread_id", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + strconv.Itoa(threadID) + "?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func signTestToken(t *testing.T, userID int, secret []byte) string {
	t.Helper()
	token, err := auth.CreateToken(userID, "alice", secret, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func TestThreadWebSocketPersistsThenBroadcasts(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	registry := NewRegistry()
	secret := []byte("test-secret")
	handler := NewThreadWebSocketHandler(registry, threadRepo, messageRepo, secret)

	threadRepo.On("IsParticipant", mock.Anything, 5, 7).Return(true, nil).Once()
	stored := models.Message{ID: 11, ThreadID: 5, SenderID: 7, Content: "hi", CreatedAt: time.Now()}
	messageRepo.On("AppendMessage", mock.Anything, 5, 7, "hi").Return(stored, nil).Once()

	conn, resp, err := dialThread(t, handler, 5, signTestToken(t, 7, secret))
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Garbage and blank frames are dropped; the connection must survive them.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"   "}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	// The broadcast carries the stored row, so receiving id 11 proves the
	// message went through the store before fan-out.
	var event models.ThreadEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "message", event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, 11, event.Message.ID)
	assert.Equal(t, "hi", event.Message.Content)

	threadRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestThreadWebSocketDisconnectLeavesGroup(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	registry := NewRegistry()
	secret := []byte("test-secret")
	handler := NewThreadWebSocketHandler(registry, threadRepo, new(mocks.MessageRepositoryMock), secret)

	threadRepo.On("IsParticipant", mock.Anything, 5, 7).Return(true, nil).Once()

	conn, resp, err := dialThread(t, handler, 5, signTestToken(t, 7, secret))
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool { return registry.Members(5) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return registry.Members(5) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestThreadWebSocketNonParticipantRejected(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	secret := []byte("test-secret")
	handler := NewThreadWebSocketHandler(NewRegistry(), threadRepo, new(mocks.MessageRepositoryMock), secret)

	threadRepo.On("IsParticipant", mock.Anything, 5, 7).Return(false, nil).Once()

	_, resp, err := dialThread(t, handler, 5, signTestToken(t, 7, secret))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestThreadWebSocketMembershipCheckErrorIsServerError(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	secret := []byte("test-secret")
	handler := NewThreadWebSocketHandler(NewRegistry(), threadRepo, new(mocks.MessageRepositoryMock), secret)

	threadRepo.On("IsParticipant", mock.Anything, 5, 7).Return(false, assert.AnError).Once()

	_, resp, err := dialThread(t, handler, 5, signTestToken(t, 7, secret))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestThreadWebSocketInvalidTokenRejected(t *testing.T) {
	handler := NewThreadWebSocketHandler(NewRegistry(), new(mocks.ThreadRepositoryMock), new(mocks.MessageRepositoryMock), []byte("test-secret"))

	_, resp, err := dialThread(t, handler, 5, signTestToken(t, 7, []byte("other-secret")))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
