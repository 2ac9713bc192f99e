package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/middleware"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
)

// MessageHandler 收件箱读取与单封邮件操作。
type MessageHandler struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	log       *zap.Logger
}

// NewMessageHandler 创建邮件处理器。
func NewMessageHandler(mailboxes *service.MailboxService, messages *service.MessageService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{
		mailboxes: mailboxes,
		messages:  messages,
		log:       log,
	}
}

// Inbox 按地址读取收件箱。
//
// 三种失败分别映射：从未存在 404、已过期 410、私有非本人 403。
func (h *MessageHandler) Inbox(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	mailbox, messages, attachmentBytes, err := h.mailboxes.GetInbox(identity, c.Param("emailAddress"))
	switch {
	case err == nil:
		Success(c, gin.H{
			"mailbox":  mailbox,
			"messages": messages,
			"count":    len(messages),
			"storage": gin.H{
				"attachmentBytesUsed": attachmentBytes,
				"maxAttachmentBytes":  domain.LimitsFor(mailbox.PlanTier).MaxAttachmentBytes,
			},
		})
	case errors.Is(err, storage.ErrMailboxNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrMailboxExpired):
		Gone(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("read inbox failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// Get 读取单封邮件。
func (h *MessageHandler) Get(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	message, err := h.messages.Get(identity, c.Param("emailAddress"), c.Param("messageId"))
	if err != nil {
		h.writeError(c, err, "get message failed")
		return
	}
	Success(c, gin.H{"message": message})
}

// MarkRead 标记邮件已读。
func (h *MessageHandler) MarkRead(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	err := h.messages.MarkRead(identity, c.Param("emailAddress"), c.Param("messageId"))
	if err != nil {
		h.writeError(c, err, "mark message read failed")
		return
	}
	Success(c, nil)
}

// Delete 删除单封邮件。
func (h *MessageHandler) Delete(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	err := h.messages.Delete(c.Request.Context(), identity, c.Param("emailAddress"), c.Param("messageId"))
	if err != nil {
		h.writeError(c, err, "delete message failed")
		return
	}
	NoContent(c)
}

func (h *MessageHandler) writeError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, storage.ErrMailboxNotFound),
		errors.Is(err, storage.ErrMessageNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error(logMsg, zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
