package domain

import "errors"

// 信箱存储错误
var (
	// ErrNoSuchMailbox 收件人信箱目录不存在（正常业务结果，不是故障）
	ErrNoSuchMailbox = errors.New("user has no inbox")
	// ErrInvalidOrdinal 序号小于 1 或大于当前邮件数
	ErrInvalidOrdinal = errors.New("invalid message number")
	// ErrWriteFailed 邮件文件创建或写入失败
	ErrWriteFailed = errors.New("failed to write message")
	// ErrDeleteFailed 邮件文件删除失败
	ErrDeleteFailed = errors.New("failed to delete message")
	// ErrReadFailed 邮件文件读取失败
	ErrReadFailed = errors.New("failed to read message")
	// ErrLockTimeout 获取信箱锁超时
	ErrLockTimeout = errors.New("timeout acquiring mailbox lock")
)
