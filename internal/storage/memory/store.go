package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/storage"
)

// maxNameAttempts 文件名冲突时最多尝试的毫秒偏移次数
const maxNameAttempts = 1000

// Store 使用内存保存信箱与邮件，主要用于开发验证。
//
// 邮件按文件系统驱动相同的文件名规则编号，排序与序号语义一致。
// s.mu 只保护信箱表，每个信箱有自己的读写锁，不同信箱上的操作互不阻塞。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*mailbox
	now       func() time.Time
}

// mailbox 单个信箱，files 为 filename -> stored text
type mailbox struct {
	mu    sync.RWMutex
	files map[string]string
}

var _ storage.MailboxStore = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*mailbox),
		now:       time.Now,
	}
}

// WithClock 替换时钟，仅用于测试
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Append 把邮件写入收件人信箱
func (s *Store) Append(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateName(msg.Sender); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := domain.ValidateName(msg.Receiver); err != nil {
		return fmt.Errorf("invalid receiver: %w", err)
	}

	box := s.mailboxFor(msg.Receiver)
	box.mu.Lock()
	defer box.mu.Unlock()

	ts := s.now()
	for i := 0; i < maxNameAttempts; i++ {
		name := storage.MessageFilename(msg.Sender, ts)
		if _, exists := box.files[name]; !exists {
			box.files[name] = msg.Render()
			return nil
		}
		ts = ts.Add(time.Millisecond)
	}
	return fmt.Errorf("%w: no free file name after %d attempts", domain.ErrWriteFailed, maxNameAttempts)
}

// List 返回信箱快照
func (s *Store) List(ctx context.Context, username string) ([]domain.MessageSummary, error) {
	box, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	box.mu.RLock()
	defer box.mu.RUnlock()

	summaries := box.snapshot()
	for i := range summaries {
		summaries[i].Subject = domain.SubjectFromText(box.files[summaries[i].Filename])
	}
	return summaries, nil
}

// Read 读取快照中第 ordinal 封邮件
func (s *Store) Read(ctx context.Context, username string, ordinal int) (*domain.MessageContent, error) {
	box, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	box.mu.RLock()
	defer box.mu.RUnlock()

	summary, err := storage.Pick(box.snapshot(), ordinal)
	if err != nil {
		return nil, err
	}

	text := box.files[summary.Filename]
	summary.Subject = domain.SubjectFromText(text)
	return &domain.MessageContent{Summary: summary, Text: text}, nil
}

// Delete 删除快照中第 ordinal 封邮件，信箱本身保留
func (s *Store) Delete(ctx context.Context, username string, ordinal int) error {
	box, err := s.lookup(ctx, username)
	if err != nil {
		return err
	}

	box.mu.Lock()
	defer box.mu.Unlock()

	summary, err := storage.Pick(box.snapshot(), ordinal)
	if err != nil {
		return err
	}

	delete(box.files, summary.Filename)
	return nil
}

// Mailboxes 返回已存在的信箱名
func (s *Store) Mailboxes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.mailboxes))
	for name := range s.mailboxes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stats 统计信箱数、邮件数和总字节数
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	boxes := make([]*mailbox, 0, len(s.mailboxes))
	for _, box := range s.mailboxes {
		boxes = append(boxes, box)
	}
	s.mu.RUnlock()

	stats := &storage.Stats{Mailboxes: len(boxes)}
	for _, box := range boxes {
		box.mu.RLock()
		stats.Messages += len(box.files)
		for _, text := range box.files {
			stats.TotalBytes += int64(len(text))
		}
		box.mu.RUnlock()
	}
	return stats, nil
}

// lookup 校验用户名并返回已存在的信箱，不存在时返回 ErrNoSuchMailbox
func (s *Store) lookup(ctx context.Context, username string) (*mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := domain.ValidateName(username); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	box, ok := s.mailboxes[username]
	if !ok {
		return nil, domain.ErrNoSuchMailbox
	}
	return box, nil
}

// mailboxFor 返回信箱，不存在时创建
func (s *Store) mailboxFor(username string) *mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()

	box, ok := s.mailboxes[username]
	if !ok {
		box = &mailbox{files: make(map[string]string)}
		s.mailboxes[username] = box
	}
	return box
}

// snapshot 生成排序后的快照，调用方必须持有 box.mu
func (box *mailbox) snapshot() []domain.MessageSummary {
	summaries := make([]domain.MessageSummary, 0, len(box.files))
	for name := range box.files {
		summary := domain.MessageSummary{Filename: name}
		if sender, ts, ok := storage.ParseFilename(name); ok {
			summary.Sender = sender
			summary.Timestamp = ts
		}
		summaries = append(summaries, summary)
	}
	storage.SortSummaries(summaries)
	return summaries
}
