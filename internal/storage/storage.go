package storage

import (
	"context"

	"twmailer/backend/internal/domain"
)

// 支持的存储驱动
const (
	DriverFilesystem = "filesystem"
	DriverMemory     = "memory"
)

// MailboxStore 定义信箱的存取操作。
//
// 同一信箱上的操作互斥；不同信箱互不阻塞。序号只在单次调用的快照内有效。
type MailboxStore interface {
	// Append 把邮件写入收件人信箱，信箱不存在时自动创建
	Append(ctx context.Context, msg *domain.Message) error
	// List 返回信箱快照，信箱不存在时返回 domain.ErrNoSuchMailbox
	List(ctx context.Context, username string) ([]domain.MessageSummary, error)
	// Read 读取快照中第 ordinal 封邮件（从 1 开始）
	Read(ctx context.Context, username string, ordinal int) (*domain.MessageContent, error)
	// Delete 删除快照中第 ordinal 封邮件
	Delete(ctx context.Context, username string, ordinal int) error
	// Mailboxes 返回已存在的信箱名，按字典序
	Mailboxes(ctx context.Context) ([]string, error)
	// Stats 返回存储统计
	Stats(ctx context.Context) (*Stats, error)
}

// Stats 存储统计信息
type Stats struct {
	Mailboxes  int   `json:"mailboxes"`
	Messages   int   `json:"messages"`
	TotalBytes int64 `json:"totalBytes"`
}
