// Package server 实现连接接入：监听端口，为每个连接启动一个独立会话。
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"twmailer/backend/internal/monitoring"
	"twmailer/backend/internal/protocol"
)

// 接受失败后的退避区间
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// rejectWriteTimeout 回复 "ERR Server busy" 的写超时
const rejectWriteTimeout = time.Second

// ErrServerClosed Serve 在 Shutdown 之后返回
var ErrServerClosed = errors.New("server closed")

// ConnHandler 处理单个连接，返回时连接必须已关闭
type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn)
}

// Config 接入参数
type Config struct {
	Addr           string  // 监听地址，ListenAndServe 使用
	MaxConnections int     // 最大并发会话数
	AcceptRate     float64 // 每秒新建连接数，<=0 表示不限速
}

// Server 连接接入器
type Server struct {
	cfg     Config
	handler ConnHandler
	limiter *ConnectionLimiter
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// New 创建接入器，metrics 可以为 nil
func New(cfg Config, handler ConnHandler, logger *zap.Logger, metrics *monitoring.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 256
	}
	return &Server{
		cfg:       cfg,
		handler:   handler,
		limiter:   NewConnectionLimiter(cfg.MaxConnections, cfg.AcceptRate),
		logger:    logger,
		metrics:   metrics,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

// ListenAndServe 监听 cfg.Addr 并开始服务
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上循环接受连接，直到 ctx 被取消或 Shutdown 被调用。
//
// 临时性的接受错误会被记录并退避重试，不会终止循环。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.cancel = cancel
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("Mail server listening", zap.String("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.logger.Warn("Accept failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", backoff))
			if s.metrics != nil {
				s.metrics.RecordError("accept", "server")
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		if ok, reason := s.limiter.Acquire(); !ok {
			s.reject(conn, reason)
			continue
		}

		if !s.track(conn) {
			s.limiter.Release()
			_ = conn.Close()
			return ErrServerClosed
		}

		go func() {
			defer s.wg.Done()
			defer s.limiter.Release()
			defer s.untrack(conn)
			s.handler.Serve(ctx, conn)
		}()
	}
}

// reject 回复繁忙并关闭连接
func (s *Server) reject(conn net.Conn, reason string) {
	s.logger.Warn("Connection rejected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("reason", reason))
	if s.metrics != nil {
		s.metrics.RecordRejected(reason)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout))
	_, _ = conn.Write(protocol.Err(protocol.ReasonBusy).Encode())
	_ = conn.Close()
}

// track 登记活动连接，服务器已关闭时返回 false
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ActiveSessions 当前活动会话数
func (s *Server) ActiveSessions() int {
	return s.limiter.Current()
}

// Shutdown 停止接受新连接，关闭活动连接，并等待会话退出或 ctx 到期
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for ln := range s.listeners {
		_ = ln.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All sessions drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
