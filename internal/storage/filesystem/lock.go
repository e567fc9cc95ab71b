package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"twmailer/backend/internal/domain"
)

// lockDirName 锁文件目录，位于存储根目录下，不会出现在任何信箱中
const lockDirName = ".locks"

// flockRetryDelay 跨进程锁的重试间隔
const flockRetryDelay = 10 * time.Millisecond

// LockRegistry 按信箱名管理互斥锁。
//
// 进程内锁是容量为 1 的通道，获取时可响应 context 取消；锁按需创建，不会销毁。
// 启用 crossProcess 时，在进程内锁之后再获取 <root>/.locks/<name>.lock 的文件锁。
type LockRegistry struct {
	mu           sync.Mutex
	locks        map[string]chan struct{}
	lockDir      string
	crossProcess bool
	timeout      time.Duration
}

// NewLockRegistry 创建锁注册表
//
// 参数:
//   - root: 存储根目录
//   - crossProcess: 是否启用文件锁
//   - timeout: 获取锁的最长等待时间，0 表示只受 ctx 限制
func NewLockRegistry(root string, crossProcess bool, timeout time.Duration) (*LockRegistry, error) {
	lockDir := filepath.Join(root, lockDirName)
	if crossProcess {
		if err := os.MkdirAll(lockDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}
	return &LockRegistry{
		locks:        make(map[string]chan struct{}),
		lockDir:      lockDir,
		crossProcess: crossProcess,
		timeout:      timeout,
	}, nil
}

// slot 返回信箱对应的进程内锁，不存在时创建
func (r *LockRegistry) slot(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[name] = ch
	}
	return ch
}

// Acquire 获取信箱锁，返回释放函数。
//
// 超时返回 domain.ErrLockTimeout，ctx 被取消时返回 ctx 的错误。
func (r *LockRegistry) Acquire(ctx context.Context, name string) (func(), error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ch := r.slot(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, lockError(ctx.Err())
	}

	if !r.crossProcess {
		return func() { <-ch }, nil
	}

	fl := flock.New(filepath.Join(r.lockDir, name+".lock"))
	locked, err := fl.TryLockContext(ctx, flockRetryDelay)
	if err != nil || !locked {
		<-ch
		if err == nil {
			err = ctx.Err()
		}
		return nil, lockError(err)
	}

	return func() {
		_ = fl.Unlock()
		<-ch
	}, nil
}

// lockError 把超时统一映射为 ErrLockTimeout
func lockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("failed to acquire mailbox lock: %w", err)
}
