package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/storage"
)

// MailboxHandler 只读信箱接口
type MailboxHandler struct {
	store  storage.MailboxStore
	logger *zap.Logger
}

// NewMailboxHandler 创建信箱处理器
func NewMailboxHandler(store storage.MailboxStore, logger *zap.Logger) *MailboxHandler {
	return &MailboxHandler{store: store, logger: logger}
}

// mailboxListing 信箱列表响应，与 LIST 命令返回相同的快照
type mailboxListing struct {
	Username string                  `json:"username"`
	Count    int                     `json:"count"`
	Messages []domain.MessageSummary `json:"messages"`
}

// messageView READ 等价的单封邮件响应
type messageView struct {
	Summary domain.MessageSummary `json:"summary"`
	Message *domain.Message       `json:"message"`
	Text    string                `json:"text"`
}

// Stats GET /api/v1/stats
func (h *MailboxHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, stats)
}

// ListMailboxes GET /api/v1/mailboxes
func (h *MailboxHandler) ListMailboxes(c *gin.Context) {
	names, err := h.store.Mailboxes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"mailboxes": names})
}

// GetMailbox GET /api/v1/mailboxes/:name
func (h *MailboxHandler) GetMailbox(c *gin.Context) {
	name := c.Param("name")
	summaries, err := h.store.List(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, mailboxListing{Username: name, Count: len(summaries), Messages: summaries})
}

// GetMessage GET /api/v1/mailboxes/:name/messages/:ordinal
func (h *MailboxHandler) GetMessage(c *gin.Context) {
	ordinal, err := strconv.Atoi(c.Param("ordinal"))
	if err != nil {
		BadRequest(c, MsgInvalidOrdinal)
		return
	}

	content, err := h.store.Read(c.Request.Context(), c.Param("name"), ordinal)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, messageView{
		Summary: content.Summary,
		Message: domain.ParseMessage(content.Text),
		Text:    content.Text,
	})
}

func (h *MailboxHandler) fail(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= 500 {
		h.logger.Error("Ops API store failure", zap.String("path", c.FullPath()), zap.Error(err))
	}
	Error(c, status, msg)
}
