package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/buffer"
)

// MessageHandler serves the conversation buffer endpoints.
type MessageHandler struct {
	buf MessageBuffer
	log *logrus.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(buf MessageBuffer, log *logrus.Logger) *MessageHandler {
	return &MessageHandler{buf: buf, log: log}
}

// Append handles POST /api/v1/messages. A failed flush is reported in the
// result body; the message itself is accepted either way.
func (h *MessageHandler) Append(c *gin.Context) {
	var msg buffer.Message
	if !bindJSON(c, &msg) {
		return
	}

	res, err := h.buf.Append(c.Request.Context(), msg)
	if err != nil {
		respondServiceError(c, h.log, err, "appending message")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "message.append",
		"thread_id": res.ThreadID,
		"buffered":  res.Buffered,
		"flushed":   res.Flushed,
	}).Info("audit")

	c.JSON(http.StatusAccepted, res)
}

type flushBody struct {
	ThreadID string `json:"thread_id" binding:"required"`
}

// Flush handles POST /api/v1/messages/flush.
func (h *MessageHandler) Flush(c *gin.Context) {
	var body flushBody
	if !bindJSON(c, &body) {
		return
	}

	n, err := h.buf.FlushThread(c.Request.Context(), body.ThreadID)
	if err != nil {
		respondServiceError(c, h.log, err, "flushing thread")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "message.flush", "thread_id": body.ThreadID, "flushed": n}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"thread_id": body.ThreadID, "flushed": n})
}

// Pending handles GET /api/v1/messages/pending?thread_id=.
func (h *MessageHandler) Pending(c *gin.Context) {
	threadID := c.Query("thread_id")
	if err := validatePathID(threadID); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "thread_id: "+err.Error())
		return
	}

	msgs := h.buf.Pending(threadID)
	if msgs == nil {
		msgs = []buffer.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "messages": msgs, "count": len(msgs)})
}
