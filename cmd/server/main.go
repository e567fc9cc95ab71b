package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"twmailer/backend/internal/config"
	"twmailer/backend/internal/health"
	"twmailer/backend/internal/logger"
	"twmailer/backend/internal/monitoring"
	"twmailer/backend/internal/server"
	"twmailer/backend/internal/session"
	"twmailer/backend/internal/storage"
	"twmailer/backend/internal/storage/filesystem"
	"twmailer/backend/internal/storage/memory"
	httptransport "twmailer/backend/internal/transport/http"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "twmailer-server [port] [mail-spool-directoryname]",
		Short: "Store-and-forward text mail exchange server",
		Long: `Accepts client connections on a TCP port and stores each message as a
file under <mail-spool-directoryname>/<receiver>/.

Positional arguments override the port and spool directory loaded from
the environment and the .env file.`,
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.ApplyArgs(args); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	// 设置 Gin 模式
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting twmailer server",
		zap.String("listen", cfg.ListenAddr()),
		zap.String("spool", cfg.Spool.Path),
		zap.String("driver", cfg.Spool.Driver),
	)

	metrics := monitoring.NewMetrics()

	// 初始化存储；根目录无法创建时直接退出
	baseStore, spoolPath, err := openStore(cfg, log)
	if err != nil {
		log.Error("failed to initialize mailbox store", zap.Error(err))
		return err
	}
	store := monitoring.InstrumentStore(baseStore, metrics)

	healthChecker := health.NewHealthChecker(store, spoolPath, log)

	handler := session.NewHandler(session.Config{
		Welcome:         cfg.Server.Welcome,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		MaxCommandBytes: cfg.Server.MaxCommandBytes,
	}, store, log, metrics)

	mailServer := server.New(server.Config{
		Addr:           cfg.ListenAddr(),
		MaxConnections: cfg.Server.MaxConnections,
		AcceptRate:     cfg.Server.AcceptRate,
	}, handler, log, metrics)

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		router := httptransport.NewRouter(httptransport.RouterDependencies{
			Store:          store,
			Health:         healthChecker,
			Metrics:        metrics,
			AllowedOrigins: cfg.Admin.AllowedOrigins,
			Logger:         log,
		})
		adminServer = &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 邮件交换服务 goroutine
	group.Go(func() error {
		log.Info("starting mail exchange listener", zap.String("address", cfg.ListenAddr()))
		if err := mailServer.ListenAndServe(groupCtx); err != nil && !errors.Is(err, server.ErrServerClosed) {
			log.Error("mail exchange server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 运维 HTTP 服务 goroutine
	if adminServer != nil {
		group.Go(func() error {
			log.Info("starting admin HTTP server", zap.String("address", adminServer.Addr))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin HTTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if adminServer != nil {
			if err := adminServer.Shutdown(shutdownCtx); err != nil {
				log.Error("admin HTTP server shutdown error", zap.Error(err))
			}
		}
		if err := mailServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("mail exchange server shutdown incomplete",
				zap.Int("active_sessions", mailServer.ActiveSessions()),
				zap.Error(err),
			)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
		return err
	}

	log.Info("server stopped")
	return nil
}

// openStore 按配置选择存储驱动，返回存储和用于健康检查的根目录（内存驱动为空）
func openStore(cfg *config.Config, log *zap.Logger) (storage.MailboxStore, string, error) {
	switch cfg.Spool.Driver {
	case storage.DriverMemory:
		log.Warn("using in-memory mailbox store, messages are lost on exit")
		return memory.NewStore(), "", nil
	default:
		fsStore, err := filesystem.NewStore(cfg.Spool.Path, filesystem.Options{
			CrossProcessLock: cfg.Spool.CrossProcessLock,
			LockTimeout:      cfg.Spool.LockTimeout,
			Logger:           log,
		})
		if err != nil {
			return nil, "", err
		}
		return fsStore, fsStore.BasePath(), nil
	}
}
