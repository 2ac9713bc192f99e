package httptransport

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/mailparse"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
)

// WebhookHandler 入站邮件 Webhook。
//
// 响应结构与其他路由不同：投递方只认 {success, reason}，
// 状态码区分硬失败（404 可停止重试）和软拒绝（200 + success=false）。
type WebhookHandler struct {
	ingest  *service.IngestService
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewWebhookHandler 创建 Webhook 处理器。
func NewWebhookHandler(ingest *service.IngestService, metrics *monitoring.Metrics, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingest:  ingest,
		metrics: metrics,
		log:     log,
	}
}

// inboundRequest 投递载荷。二选一：Raw 是 base64 的原始 MIME，
// 或者直接给结构化字段。信封收件人 To 始终必填。
type inboundRequest struct {
	To          string              `json:"to" binding:"required"`
	From        string              `json:"from"`
	Subject     string              `json:"subject"`
	TextBody    string              `json:"textBody"`
	HTMLBody    string              `json:"htmlBody"`
	MessageID   string              `json:"messageId"`
	InReplyTo   string              `json:"inReplyTo"`
	References  string              `json:"references"`
	Raw         string              `json:"raw"`
	Attachments []inboundAttachment `json:"attachments"`
}

type inboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"` // base64
}

// Receive 处理一封入站邮件。
func (h *WebhookHandler) Receive(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, http.StatusBadRequest, "INVALID_PAYLOAD")
		return
	}

	inbound, err := h.normalize(&req)
	if err != nil {
		h.reject(c, http.StatusBadRequest, "INVALID_PAYLOAD")
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), inbound)
	if errors.Is(err, service.ErrInvalidInbound) {
		h.reject(c, http.StatusBadRequest, "INVALID_PAYLOAD")
		return
	}
	if err != nil {
		h.log.Error("ingest failed", zap.String("to", inbound.To), zap.Error(err))
		h.metrics.MessagesIngested.WithLabelValues("error").Inc()
		h.reject(c, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}

	h.metrics.MessagesIngested.WithLabelValues(string(result.Outcome)).Inc()
	switch result.Outcome {
	case service.OutcomeStored:
		h.metrics.MessagesEvicted.Add(float64(result.Evicted))
		for _, att := range result.Message.Attachments {
			h.metrics.AttachmentsStored.Inc()
			h.metrics.AttachmentBytes.Observe(float64(att.Size))
		}
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data": gin.H{
				"emailId":    result.Message.ID,
				"to":         result.Message.To,
				"from":       result.Message.From,
				"subject":    result.Message.Subject,
				"receivedAt": result.Message.ReceivedAt,
			},
		})
	case service.OutcomeMailboxNotFound:
		h.reject(c, http.StatusNotFound, "MAILBOX_NOT_FOUND")
	case service.OutcomeInboxFull:
		// 软拒绝用 200：邮箱存在，只是这封被放弃，投递方不必重试
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"reason":  result.Reason,
		})
	default:
		h.reject(c, http.StatusInternalServerError, "INTERNAL_ERROR")
	}
}

// normalize 把投递载荷转成统一的入站结构。
func (h *WebhookHandler) normalize(req *inboundRequest) (*domain.InboundEmail, error) {
	if req.Raw != "" {
		raw, err := base64.StdEncoding.DecodeString(req.Raw)
		if err != nil {
			return nil, err
		}
		parsed, err := mailparse.Parse(raw)
		if err != nil {
			return nil, err
		}
		// 信封收件人优先于 MIME 头里的 To
		parsed.To = req.To
		if parsed.From == "" {
			parsed.From = req.From
		}
		return parsed, nil
	}

	inbound := &domain.InboundEmail{
		To:         req.To,
		From:       req.From,
		Subject:    req.Subject,
		TextBody:   req.TextBody,
		HTMLBody:   req.HTMLBody,
		MessageID:  req.MessageID,
		InReplyTo:  req.InReplyTo,
		References: req.References,
	}
	for _, att := range req.Attachments {
		content, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, err
		}
		inbound.Attachments = append(inbound.Attachments, domain.InboundAttachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        int64(len(content)),
			Content:     content,
		})
	}
	return inbound, nil
}

func (h *WebhookHandler) reject(c *gin.Context, status int, reason string) {
	c.JSON(status, gin.H{
		"success": false,
		"reason":  reason,
	})
}
