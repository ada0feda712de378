package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/mdpublish/internal/logger"
	"github.com/dtroode/mdpublish/internal/model"
	"github.com/dtroode/mdpublish/internal/service"
)

const (
	SignatureHeader = "X-Dropbox-Signature"
	maxWebhookBody  = 1 << 20
)

// Enqueuer schedules background syncs.
type Enqueuer interface {
	Enqueue(uid model.UID) bool
}

type Webhook struct {
	secret     string
	dispatcher Enqueuer
	logger     *logger.Logger
}

func NewWebhook(secret string, dispatcher Enqueuer, logger *logger.Logger) *Webhook {
	return &Webhook{
		secret:     secret,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Challenge answers the endpoint verification request by echoing the challenge.
func (h *Webhook) Challenge(c *gin.Context) {
	if !service.VerifySignature(h.secret, []byte(service.ChallengeMessage), c.GetHeader(SignatureHeader)) {
		h.logger.Warn("Webhook: rejected challenge", "error", model.ErrSignatureInvalid.Error())
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.String(http.StatusOK, c.Query("challenge"))
}

// Notify verifies a change notification and schedules a sync for every listed
// user. Nothing is scheduled unless the signature matches.
func (h *Webhook) Notify(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatus(http.StatusRequestEntityTooLarge)
		return
	}

	if !service.VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("Webhook: rejected notification", "error", model.ErrSignatureInvalid.Error())
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	uids, err := parseNotification(body)
	if err != nil {
		h.logger.Warn("Webhook: malformed notification", "error", err.Error())
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	for _, uid := range uids {
		if !h.dispatcher.Enqueue(uid) {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
	}
	h.logger.Debug("Webhook: notification accepted", "users", len(uids))

	c.Status(http.StatusOK)
}

type notification struct {
	Delta struct {
		Users []json.RawMessage `json:"users"`
	} `json:"delta"`
}

// parseNotification accepts user ids encoded as JSON numbers or strings.
func parseNotification(body []byte) ([]model.UID, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}

	uids := make([]model.UID, 0, len(n.Delta.Users))
	for _, raw := range n.Delta.Users {
		uid, err := parseUID(raw)
		if err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

func parseUID(raw json.RawMessage) (model.UID, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("failed to decode user id: %w", err)
	}

	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return "", fmt.Errorf("user id %s is not a number or string", raw)
	}
	if s == "" {
		return "", fmt.Errorf("empty user id")
	}
	return model.UID(s), nil
}
