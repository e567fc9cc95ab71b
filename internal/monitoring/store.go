package monitoring

import (
	"context"
	"time"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/storage"
)

// InstrumentedStore 为信箱存储记录操作指标
type InstrumentedStore struct {
	next    storage.MailboxStore
	metrics *Metrics
}

var _ storage.MailboxStore = (*InstrumentedStore)(nil)

// InstrumentStore 包装存储；metrics 为 nil 时原样返回
func InstrumentStore(next storage.MailboxStore, metrics *Metrics) storage.MailboxStore {
	if metrics == nil {
		return next
	}
	return &InstrumentedStore{next: next, metrics: metrics}
}

func (s *InstrumentedStore) Append(ctx context.Context, msg *domain.Message) error {
	start := time.Now()
	err := s.next.Append(ctx, msg)
	s.metrics.RecordStoreOperation("append", err, time.Since(start))
	if err == nil {
		s.metrics.MessagesStored.Inc()
	}
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, username string) ([]domain.MessageSummary, error) {
	start := time.Now()
	out, err := s.next.List(ctx, username)
	s.metrics.RecordStoreOperation("list", err, time.Since(start))
	return out, err
}

func (s *InstrumentedStore) Read(ctx context.Context, username string, ordinal int) (*domain.MessageContent, error) {
	start := time.Now()
	out, err := s.next.Read(ctx, username, ordinal)
	s.metrics.RecordStoreOperation("read", err, time.Since(start))
	return out, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, username string, ordinal int) error {
	start := time.Now()
	err := s.next.Delete(ctx, username, ordinal)
	s.metrics.RecordStoreOperation("delete", err, time.Since(start))
	if err == nil {
		s.metrics.MessagesDeleted.Inc()
	}
	return err
}

func (s *InstrumentedStore) Mailboxes(ctx context.Context) ([]string, error) {
	return s.next.Mailboxes(ctx)
}

func (s *InstrumentedStore) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.next.Stats(ctx)
}
