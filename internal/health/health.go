package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"twmailer/backend/internal/storage"
)

// DefaultGoroutineLimit 存活检查的 goroutine 上限
const DefaultGoroutineLimit = 10000

// HealthChecker 健康检查器
type HealthChecker struct {
	health    healthcheck.Handler
	store     storage.MailboxStore
	spoolPath string
	logger    *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// spoolPath 为空时（内存驱动）跳过目录可写检查。
func NewHealthChecker(store storage.MailboxStore, spoolPath string, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health:    healthcheck.NewHandler(),
		store:     store,
		spoolPath: spoolPath,
		logger:    logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(DefaultGoroutineLimit))

	if hc.spoolPath != "" {
		hc.health.AddReadinessCheck("spool-writable", healthcheck.Timeout(SpoolWritableCheck(hc.spoolPath), 2*time.Second))
	}

	hc.health.AddReadinessCheck("mailbox-store", healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := hc.store.Mailboxes(ctx)
		return err
	}, 3*time.Second))
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行健康检查，返回各项状态
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if hc.spoolPath != "" {
		if err := SpoolWritableCheck(hc.spoolPath)(); err != nil {
			results["spool"] = fmt.Sprintf("ERROR: %v", err)
			hc.logger.Warn("Spool health check failed", zap.Error(err))
		} else {
			results["spool"] = "OK"
		}
	} else {
		results["spool"] = "NOT_AVAILABLE"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := hc.store.Mailboxes(ctx); err != nil {
		results["store"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["store"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}

// SpoolWritableCheck 检查存储根目录可写：创建并删除一个隐藏探针文件
func SpoolWritableCheck(path string) healthcheck.Check {
	return func() error {
		f, err := os.CreateTemp(path, ".health-*")
		if err != nil {
			return fmt.Errorf("spool not writable: %w", err)
		}
		name := f.Name()
		_ = f.Close()
		if err := os.Remove(name); err != nil {
			return fmt.Errorf("spool probe cleanup failed: %w", err)
		}
		return nil
	}
}
