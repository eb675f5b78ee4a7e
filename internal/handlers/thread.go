package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resonate/chat-service/internal/errs"
	"resonate/chat-service/internal/models"
	"resonate/chat-service/internal/repositories"
)

// Broadcaster is the notification side channel for newly stored messages.
// Satisfied by the websocket registry; delivery is best effort and never
// affects the request outcome.
type Broadcaster interface {
	Publish(threadID int, msg models.Message)
}

// ThreadHandler serves the non-real-time conversation endpoints: the inbox,
// the thread view and message submission. Clients without a live connection
// rely entirely on this path.
type ThreadHandler struct {
	threadRepo  repositories.ThreadRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	broadcaster Broadcaster
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(threadRepo repositories.ThreadRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, broadcaster Broadcaster) *ThreadHandler {
	return &ThreadHandler{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		broadcaster: broadcaster,
	}
}

const inboxPath = "/chats"

// ListInbox returns the user's threads ordered by last activity descending.
func (h *ThreadHandler) ListInbox(c *gin.Context) {
	userID := c.GetInt("userID")

	threads, err := h.threadRepo.ListInbox(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load inbox"})
		return
	}

	otherIDs := make([]int, 0, len(threads))
	for _, t := range threads {
		otherIDs = append(otherIDs, t.OtherUserID)
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), otherIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user info"})
		return
	}
	usernameByID := map[int]string{}
	for _, u := range users {
		usernameByID[u.ID] = u.Username
	}

	type inboxRow struct {
		ThreadID      int       `json:"thread_id"`
		OtherUserID   int       `json:"other_user_id"`
		OtherUsername string    `json:"other_username,omitempty"`
		LastActivity  time.Time `json:"last_activity"`
		Created       time.Time `json:"created_at"`
	}

	rows := make([]inboxRow, 0, len(threads))
	for _, t := range threads {
		rows = append(rows, inboxRow{
			ThreadID:      t.ThreadID,
			OtherUserID:   t.OtherUserID,
			OtherUsername: usernameByID[t.OtherUserID],
			LastActivity:  t.LastActivity,
			Created:       t.Created,
		})
	}

	c.JSON(http.StatusOK, gin.H{"threads": rows})
}

// StartThread resolves or creates the thread with the target username and
// redirects to it. A self-target is rejected by redirecting back to the
// inbox, matching the invalid-operation policy.
func (h *ThreadHandler) StartThread(c *gin.Context) {
	var req struct {
		Username string `json:"username" form:"username" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	other, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	userID := c.GetInt("userID")
	thread, err := h.threadRepo.ResolveOrCreate(c.Request.Context(), userID, other.ID)
	if err != nil {
		if errors.Is(err, errs.ErrSelfThread) {
			c.Redirect(http.StatusSeeOther, inboxPath)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start thread"})
		return
	}

	c.Redirect(http.StatusSeeOther, threadPath(thread.ID))
}

// GetThread returns the thread's messages in chronological order along with
// the other participant. Non-participants are redirected to the inbox with no
// data exposed.
func (h *ThreadHandler) GetThread(c *gin.Context) {
	threadID, ok := parseThreadID(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	thread, err := h.threadRepo.GetThread(c.Request.Context(), threadID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrThreadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "thread not found"})
		return
	}
	if !thread.HasParticipant(userID) {
		c.Redirect(http.StatusSeeOther, inboxPath)
		return
	}

	msgs, err := h.messageRepo.ListThreadMessages(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	other, err := h.userRepo.GetUserByID(c.Request.Context(), thread.OtherParticipant(userID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thread_id":         thread.ID,
		"other_participant": other,
		"messages":          msgs,
	})
}

// PostThreadMessage stores a message and redirects back to the thread view so
// the new message is visible without a live connection. Broadcast is a side
// effect after the row is durable.
func (h *ThreadHandler) PostThreadMessage(c *gin.Context) {
	threadID, ok := parseThreadID(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	thread, err := h.threadRepo.GetThread(c.Request.Context(), threadID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrThreadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "thread not found"})
		return
	}
	if !thread.HasParticipant(userID) {
		c.Redirect(http.StatusSeeOther, inboxPath)
		return
	}

	var req struct {
		Content string `json:"content" form:"content"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrEmptyMessage.Error()})
		return
	}

	msg, err := h.messageRepo.AppendMessage(c.Request.Context(), threadID, userID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.Publish(threadID, msg)
	}

	c.Redirect(http.StatusSeeOther, threadPath(threadID))
}

func parseThreadID(c *gin.Context) (int, bool) {
	threadID, err := strconv.Atoi(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return 0, false
	}
	return threadID, true
}

func threadPath(threadID int) string {
	return inboxPath + "/" + strconv.Itoa(threadID)
}
