// Package session 实现每个连接上的命令状态机：发送欢迎行，逐条读取命令并分发到信箱存储，
// 每条请求恰好回复一帧响应，直到 QUIT 或连接断开。
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"twmailer/backend/internal/command"
	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/monitoring"
	"twmailer/backend/internal/protocol"
	"twmailer/backend/internal/storage"
)

// readBufferSize 单次读取的缓冲区大小
const readBufferSize = 4096

// State 会话状态
type State int

const (
	StateAwaitingWelcomeSent State = iota
	StateAwaitingCommand
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingWelcomeSent:
		return "awaiting_welcome_sent"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config 会话参数
type Config struct {
	Welcome         string        // 欢迎行，空时使用 protocol.DefaultWelcome
	ReadTimeout     time.Duration // 等待下一条命令的空闲超时，0 表示不限制
	WriteTimeout    time.Duration // 单次响应的写超时，0 表示不限制
	MaxCommandBytes int           // 单条命令的最大字节数
}

// Handler 为每个连接运行一个会话
type Handler struct {
	cfg     Config
	store   storage.MailboxStore
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler 创建会话处理器，metrics 可以为 nil
func NewHandler(cfg Config, store storage.MailboxStore, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCommandBytes <= 0 {
		cfg.MaxCommandBytes = protocol.DefaultMaxBlockBytes
	}
	return &Handler{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Session 单个连接的会话状态
type Session struct {
	ID      string
	conn    net.Conn
	state   State
	decoder *protocol.Decoder
	logger  *zap.Logger
	h       *Handler
}

// Serve 在 conn 上运行会话直到结束，返回时连接已关闭。
//
// ctx 被取消时连接会被关闭，阻塞中的读写随之返回。
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	s := &Session{
		ID:      uuid.NewString(),
		conn:    conn,
		state:   StateAwaitingWelcomeSent,
		decoder: protocol.NewDecoder(h.cfg.MaxCommandBytes),
		h:       h,
	}
	s.logger = h.logger.With(
		zap.String("session_id", s.ID),
		zap.String("remote", remoteAddr(conn)),
	)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if h.metrics != nil {
		h.metrics.SessionStarted()
		defer h.metrics.SessionEnded()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in session", zap.Any("error", r), zap.Stack("stack"))
			if h.metrics != nil {
				h.metrics.RecordPanic()
			}
		}
		s.close()
	}()

	s.logger.Info("Session opened")
	s.run(ctx)
}

// State 返回当前状态
func (s *Session) State() State {
	return s.state
}

func (s *Session) run(ctx context.Context) {
	if err := s.write(protocol.Welcome(s.h.cfg.Welcome)); err != nil {
		s.logger.Debug("Failed to send welcome", zap.Error(err))
		return
	}
	s.state = StateAwaitingCommand

	buf := make([]byte, readBufferSize)
	for s.state == StateAwaitingCommand {
		block, err := s.decoder.Decode()
		switch {
		case err == nil:
			s.state = StateDispatching
			resp, quit := s.dispatch(ctx, command.Parse(block))
			if werr := s.write(resp); werr != nil {
				s.logger.Debug("Failed to write response", zap.Error(werr))
				return
			}
			if quit {
				return
			}
			s.state = StateAwaitingCommand
			continue
		case errors.Is(err, protocol.ErrBlockTooLarge):
			s.logger.Warn("Command exceeds size limit", zap.Int("buffered", s.decoder.Buffered()))
			s.recordCommand("OVERSIZE", monitoring.ResultInvalid, 0)
			_ = s.write(protocol.Err(protocol.ReasonTooLarge))
			return
		}

		// ErrNeedMoreData
		if s.h.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.h.cfg.ReadTimeout))
		}
		n, rerr := s.conn.Read(buf)
		if n > 0 {
			s.decoder.Feed(buf[:n])
		}
		if rerr != nil {
			if n > 0 {
				// 处理断开前最后一批数据，例如不带换行的 QUIT
				s.drain(ctx)
			}
			s.logReadError(rerr)
			return
		}
	}
}

// drain 处理缓冲区中已完整的命令，连接即将关闭，仍尽力回复
func (s *Session) drain(ctx context.Context) {
	for {
		block, err := s.decoder.Decode()
		if err != nil {
			return
		}
		resp, quit := s.dispatch(ctx, command.Parse(block))
		if s.write(resp) != nil || quit {
			return
		}
	}
}

// dispatch 执行命令并生成响应，quit 为 true 表示会话应结束
func (s *Session) dispatch(ctx context.Context, cmd command.Command) (resp protocol.Response, quit bool) {
	start := time.Now()
	result := monitoring.ResultOK
	defer func() {
		if resp.IsErr() && result == monitoring.ResultOK {
			result = monitoring.ResultErr
		}
		s.recordCommand(cmd.Name(), result, time.Since(start))
	}()

	switch c := cmd.(type) {
	case command.Send:
		s.logger.Debug("SEND", zap.String("sender", c.Message.Sender), zap.String("receiver", c.Message.Receiver))
		if err := s.h.store.Append(ctx, &c.Message); err != nil {
			s.storeFailed("append", err)
			return protocol.Err(""), false
		}
		return protocol.OK(), false

	case command.List:
		s.logger.Debug("LIST", zap.String("username", c.Username))
		summaries, err := s.h.store.List(ctx, c.Username)
		if err != nil {
			if errors.Is(err, domain.ErrNoSuchMailbox) {
				return protocol.Err(protocol.ReasonNoInbox), false
			}
			s.storeFailed("list", err)
			return protocol.Err(""), false
		}
		return protocol.Listing(c.Username, summaries), false

	case command.Read:
		s.logger.Debug("READ", zap.String("username", c.Username), zap.Int("ordinal", c.Ordinal))
		content, err := s.h.store.Read(ctx, c.Username, c.Ordinal)
		if err != nil {
			s.storeFailed("read", err)
			return protocol.Err(""), false
		}
		return protocol.OKWithText(content.Text), false

	case command.Del:
		s.logger.Debug("DEL", zap.String("username", c.Username), zap.Int("ordinal", c.Ordinal))
		if err := s.h.store.Delete(ctx, c.Username, c.Ordinal); err != nil {
			s.storeFailed("delete", err)
			return protocol.Err(""), false
		}
		return protocol.OK(), false

	case command.Quit:
		s.logger.Debug("QUIT")
		return protocol.OK(), true

	case command.Invalid:
		result = monitoring.ResultInvalid
		s.logger.Debug("Invalid command", zap.String("command", c.Command), zap.String("reason", c.Reason))
		return protocol.Err(c.Reason), false

	default:
		result = monitoring.ResultInvalid
		return protocol.Err(command.ReasonUnknownCommand), false
	}
}

// storeFailed 记录存储错误；信箱不存在和序号越界属于正常业务结果
func (s *Session) storeFailed(op string, err error) {
	if errors.Is(err, domain.ErrNoSuchMailbox) || errors.Is(err, domain.ErrInvalidOrdinal) {
		s.logger.Debug("Store rejected request", zap.String("operation", op), zap.Error(err))
		return
	}
	s.logger.Warn("Store operation failed", zap.String("operation", op), zap.Error(err))
	if s.h.metrics != nil {
		s.h.metrics.RecordError("store", op)
	}
}

func (s *Session) recordCommand(name, result string, d time.Duration) {
	if s.h.metrics != nil {
		s.h.metrics.RecordCommand(name, result, d)
	}
}

// write 写出一帧响应，配置了写超时时设置截止时间
func (s *Session) write(resp protocol.Response) error {
	if s.h.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout))
	}
	_, err := s.conn.Write(resp.Encode())
	return err
}

func (s *Session) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Debug("Peer closed connection")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Info("Session idle timeout")
	case errors.Is(err, net.ErrClosed):
		s.logger.Debug("Connection closed")
	default:
		s.logger.Warn("Read failed", zap.Error(err))
	}
}

func (s *Session) close() {
	s.state = StateClosed
	_ = s.conn.Close()
	s.logger.Info("Session closed")
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
