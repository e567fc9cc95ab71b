package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/storage"
)

// maxNameAttempts 文件名冲突时最多尝试的毫秒偏移次数
const maxNameAttempts = 1000

// Options 文件系统存储选项
type Options struct {
	CrossProcessLock bool          // 是否启用 flock 跨进程锁
	LockTimeout      time.Duration // 获取信箱锁的最长等待时间
	Logger           *zap.Logger
	Now              func() time.Time // 测试时替换时钟
}

// Store 文件系统信箱存储实现
//
// 目录结构: <root>/<username>/<sender>_msg_<unixMillis>.txt
type Store struct {
	basePath      string         // 邮件存储根目录
	platformUtils *PlatformUtils // 平台兼容性工具
	locks         *LockRegistry
	logger        *zap.Logger
	now           func() time.Time
}

var _ storage.MailboxStore = (*Store)(nil)

// NewStore 创建文件系统存储实例，根目录不存在时自动创建
func NewStore(basePath string, opts Options) (*Store, error) {
	platformUtils := NewPlatformUtils()

	if err := platformUtils.ValidatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	normalizedPath := platformUtils.NormalizePath(basePath)

	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	locks, err := NewLockRegistry(normalizedPath, opts.CrossProcessLock, opts.LockTimeout)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		basePath:      normalizedPath,
		platformUtils: platformUtils,
		locks:         locks,
		logger:        logger,
		now:           now,
	}, nil
}

// BasePath 返回存储根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// Append 把邮件写入收件人信箱
func (s *Store) Append(ctx context.Context, msg *domain.Message) error {
	if err := domain.ValidateName(msg.Sender); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := domain.ValidateName(msg.Receiver); err != nil {
		return fmt.Errorf("invalid receiver: %w", err)
	}

	release, err := s.locks.Acquire(ctx, msg.Receiver)
	if err != nil {
		return err
	}
	defer release()

	dir := s.getMailboxPath(msg.Receiver)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create mailbox: %v", domain.ErrWriteFailed, err)
	}

	f, name, err := s.createUnique(dir, msg.Sender)
	if err != nil {
		return err
	}

	if _, err := f.WriteString(msg.Render()); err != nil {
		_ = f.Close()
		_ = os.Remove(filepath.Join(dir, name))
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(filepath.Join(dir, name))
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	s.logger.Debug("Message stored",
		zap.String("mailbox", msg.Receiver),
		zap.String("file", name))
	return nil
}

// createUnique 以 O_EXCL 创建邮件文件，冲突时把时间戳后移 1 毫秒
func (s *Store) createUnique(dir, sender string) (*os.File, string, error) {
	ts := s.now()
	for i := 0; i < maxNameAttempts; i++ {
		name := storage.MessageFilename(sender, ts)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
		}
		ts = ts.Add(time.Millisecond)
	}
	return nil, "", fmt.Errorf("%w: no free file name after %d attempts", domain.ErrWriteFailed, maxNameAttempts)
}

// List 返回信箱快照
func (s *Store) List(ctx context.Context, username string) ([]domain.MessageSummary, error) {
	if err := domain.ValidateName(username); err != nil {
		return nil, err
	}

	if err := s.requireMailbox(username); err != nil {
		return nil, err
	}
	release, err := s.locks.Acquire(ctx, username)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.snapshot(username, true)
}

// Read 读取快照中第 ordinal 封邮件
func (s *Store) Read(ctx context.Context, username string, ordinal int) (*domain.MessageContent, error) {
	if err := domain.ValidateName(username); err != nil {
		return nil, err
	}

	if err := s.requireMailbox(username); err != nil {
		return nil, err
	}
	release, err := s.locks.Acquire(ctx, username)
	if err != nil {
		return nil, err
	}
	defer release()

	summaries, err := s.snapshot(username, false)
	if err != nil {
		return nil, err
	}
	summary, err := storage.Pick(summaries, ordinal)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.getMailboxPath(username), summary.Filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadFailed, err)
	}

	text := string(data)
	summary.Subject = domain.SubjectFromText(text)
	return &domain.MessageContent{Summary: summary, Text: text}, nil
}

// Delete 删除快照中第 ordinal 封邮件
func (s *Store) Delete(ctx context.Context, username string, ordinal int) error {
	if err := domain.ValidateName(username); err != nil {
		return err
	}

	if err := s.requireMailbox(username); err != nil {
		return err
	}
	release, err := s.locks.Acquire(ctx, username)
	if err != nil {
		return err
	}
	defer release()

	summaries, err := s.snapshot(username, false)
	if err != nil {
		return err
	}
	summary, err := storage.Pick(summaries, ordinal)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.getMailboxPath(username), summary.Filename)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeleteFailed, err)
	}

	s.logger.Debug("Message deleted",
		zap.String("mailbox", username),
		zap.String("file", summary.Filename))
	return nil
}

// Mailboxes 返回已存在的信箱名
func (s *Store) Mailboxes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && domain.IsValidName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stats 统计信箱数、邮件数和总字节数
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	names, err := s.Mailboxes(ctx)
	if err != nil {
		return nil, err
	}

	stats := &storage.Stats{Mailboxes: len(names)}
	for _, name := range names {
		release, err := s.locks.Acquire(ctx, name)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(s.getMailboxPath(name))
		if err != nil {
			release()
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !s.platformUtils.IsMessageFile(e.Name()) {
				continue
			}
			if info, err := e.Info(); err == nil {
				stats.Messages++
				stats.TotalBytes += info.Size()
			}
		}
		release()
	}
	return stats, nil
}

// snapshot 扫描信箱目录并排序，调用方必须持有信箱锁。
// withSubjects 为 true 时读取每个文件的主题行。
func (s *Store) snapshot(username string, withSubjects bool) ([]domain.MessageSummary, error) {
	dir := s.getMailboxPath(username)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNoSuchMailbox
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadFailed, err)
	}

	summaries := make([]domain.MessageSummary, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !s.platformUtils.IsMessageFile(e.Name()) {
			continue
		}
		summary := domain.MessageSummary{Filename: e.Name()}
		if sender, ts, ok := storage.ParseFilename(e.Name()); ok {
			summary.Sender = sender
			summary.Timestamp = ts
		}
		summaries = append(summaries, summary)
	}
	storage.SortSummaries(summaries)

	if withSubjects {
		for i := range summaries {
			data, err := os.ReadFile(filepath.Join(dir, summaries[i].Filename))
			if err != nil {
				s.logger.Warn("Failed to read message for listing",
					zap.String("mailbox", username),
					zap.String("file", summaries[i].Filename),
					zap.Error(err))
				continue
			}
			summaries[i].Subject = domain.SubjectFromText(string(data))
		}
	}
	return summaries, nil
}

// requireMailbox 在加锁之前确认信箱目录存在。
// 信箱目录只会被 Append 创建、从不删除，因此不存在的信箱不会获得进程内锁，也不会产生锁文件。
func (s *Store) requireMailbox(username string) error {
	info, err := os.Stat(s.getMailboxPath(username))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrNoSuchMailbox
		}
		return fmt.Errorf("%w: %v", domain.ErrReadFailed, err)
	}
	if !info.IsDir() {
		return domain.ErrNoSuchMailbox
	}
	return nil
}

// getMailboxPath 获取信箱目录
func (s *Store) getMailboxPath(username string) string {
	return filepath.Join(s.basePath, username)
}
