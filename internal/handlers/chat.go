package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"duochat/internal/models"
	"duochat/internal/render"
	"duochat/internal/repositories"
	"duochat/internal/telemetry"
	"duochat/internal/timeline"
)

// ChatHandler manages conversations and their timelines.
type ChatHandler struct {
	convRepo    repositories.ConversationRepository
	msgRepo     repositories.MessageRepository
	profileRepo repositories.ProfileRepository
	broker      *timeline.Broker
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, profileRepo repositories.ProfileRepository, broker *timeline.Broker, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		profileRepo: profileRepo,
		broker:      broker,
		audit:       audit,
	}
}

// ListConversations returns the caller's conversations, newest first.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := userIDFromContext(c)

	summaries, err := h.convRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation resolves the canonical conversation for the caller and
// a peer, creating it on first contact. Idempotent: repeated and concurrent
// calls converge on the same conversation.
func (h *ChatHandler) StartConversation(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if _, err := h.profileRepo.Get(c.Request.Context(), req.PeerID); err != nil {
		abortWithError(c, err, "failed to load peer")
		return
	}

	conv, err := h.convRepo.CreateOrGet(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		abortWithError(c, err, "could not resolve conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// GetMessages returns the full ordered timeline snapshot.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID, ok := h.requireMember(c)
	if !ok {
		return
	}

	msgs, err := h.msgRepo.List(c.Request.Context(), conversationID)
	if err != nil {
		abortWithError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a message, optionally as a reply, and notifies
// subscribers.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	conversationID, ok := h.requireMember(c)
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	var req struct {
		Body    string `json:"body" binding:"required"`
		ReplyTo string `json:"reply_to,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var replyRef *models.ReplyRef
	if req.ReplyTo != "" {
		replyRef = &models.ReplyRef{MessageID: req.ReplyTo}
	}

	msg, err := h.msgRepo.Append(c.Request.Context(), conversationID, userID, req.Body, replyRef)
	if err != nil {
		abortWithError(c, err, "failed to store message")
		return
	}

	h.broker.InvalidateTimeline(c.Request.Context(), conversationID)
	h.audit.Emit(c.Request.Context(), "INFO", "message appended", requestIDFromContext(c), &userID)
	c.JSON(http.StatusCreated, msg)
}

// ToggleReaction flips the caller's reaction on a message.
func (h *ChatHandler) ToggleReaction(c *gin.Context) {
	conversationID, ok := h.requireMember(c)
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.msgRepo.ToggleReaction(c.Request.Context(), conversationID, c.Param("message_id"), req.Emoji, userID)
	if err != nil {
		abortWithError(c, err, "failed to toggle reaction")
		return
	}

	h.broker.InvalidateTimeline(c.Request.Context(), conversationID)
	c.Status(http.StatusNoContent)
}

// MarkRead records a read marker. With a message id it stamps that message;
// without one it stamps the whole conversation.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	conversationID, ok := h.requireMember(c)
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	var req struct {
		MessageID string `json:"message_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if req.MessageID != "" {
		err = h.msgRepo.MarkRead(c.Request.Context(), conversationID, req.MessageID, userID)
	} else {
		err = h.msgRepo.MarkConversationRead(c.Request.Context(), conversationID, userID)
	}
	if err != nil {
		abortWithError(c, err, "failed to mark read")
		return
	}

	h.broker.InvalidateTimeline(c.Request.Context(), conversationID)
	c.Status(http.StatusNoContent)
}

// DeleteMessage tombstones a message for everyone. Sender only.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	conversationID, ok := h.requireMember(c)
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	err := h.msgRepo.Delete(c.Request.Context(), conversationID, c.Param("message_id"), userID)
	if err != nil {
		abortWithError(c, err, "could not delete message")
		return
	}

	h.broker.InvalidateTimeline(c.Request.Context(), conversationID)
	h.audit.Emit(c.Request.Context(), "INFO", "message deleted", requestIDFromContext(c), &userID)
	c.Status(http.StatusNoContent)
}

// RenderTimeline serves the timeline as server-rendered markup. The
// viewer's time zone comes from the tz query parameter (IANA name).
func (h *ChatHandler) RenderTimeline(c *gin.Context) {
	conversationID, ok := h.requireMember(c)
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	loc := time.Local
	if name := c.Query("tz"); name != "" {
		parsed, err := time.LoadLocation(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tz"})
			return
		}
		loc = parsed
	}

	msgs, err := h.msgRepo.List(c.Request.Context(), conversationID)
	if err != nil {
		abortWithError(c, err, "failed to load messages")
		return
	}

	viewer := render.Viewer{UserID: userID, Location: loc, Now: time.Now()}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(render.TimelineHTML(msgs, viewer)))
}

// requireMember validates the conversation id and the caller's membership.
func (h *ChatHandler) requireMember(c *gin.Context) (string, bool) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return "", false
	}
	userID := userIDFromContext(c)

	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		abortWithError(c, err, "failed to verify membership")
		return "", false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return "", false
	}
	return conversationID, true
}
