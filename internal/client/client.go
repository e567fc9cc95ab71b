// Package client 实现信件交换协议的客户端，供控制台客户端和端到端测试使用。
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/protocol"
)

// DefaultIdleWindow READ 响应在连接空闲多久后视为结束
const DefaultIdleWindow = 200 * time.Millisecond

// DefaultTimeout 等待响应首行的超时
const DefaultTimeout = 10 * time.Second

// ErrProtocol 服务端响应格式不符合预期
var ErrProtocol = errors.New("unexpected server response")

// Options 客户端选项
type Options struct {
	Timeout    time.Duration // 等待响应首行的超时
	IdleWindow time.Duration // READ 正文的空闲窗口
}

// Client 一个连接上的协议客户端，不能并发使用
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	opts    Options
	welcome string
}

// Dial 连接服务器并读取欢迎行
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, err := NewClient(conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient 在已建立的连接上创建客户端并读取欢迎行
func NewClient(conn net.Conn, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = DefaultIdleWindow
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn), opts: opts}

	welcome, err := c.readLine(opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to read welcome: %w", err)
	}
	c.welcome = welcome
	return c, nil
}

// Welcome 返回服务器欢迎行
func (c *Client) Welcome() string {
	return c.welcome
}

// Send 投递邮件
func (c *Client) Send(msg domain.Message) (protocol.Response, error) {
	lines := []string{protocol.CmdSend, msg.Sender, msg.Receiver, msg.Subject}
	lines = append(lines, msg.Body...)
	lines = append(lines, protocol.Terminator)
	if err := c.write(lines...); err != nil {
		return protocol.Response{}, err
	}
	return c.readStatus()
}

// List 列出信箱
func (c *Client) List(username string) (protocol.Response, error) {
	if err := c.write(protocol.CmdList, username); err != nil {
		return protocol.Response{}, err
	}

	header, err := c.readLine(c.opts.Timeout)
	if err != nil {
		return protocol.Response{}, err
	}
	resp := protocol.Response{Lines: []string{header}}
	if resp.IsErr() {
		return resp, nil
	}

	countField, _, _ := strings.Cut(header, " ")
	count, err := strconv.Atoi(countField)
	if err != nil {
		return resp, fmt.Errorf("%w: %q", ErrProtocol, header)
	}
	for i := 0; i < count; i++ {
		line, err := c.readLine(c.opts.Timeout)
		if err != nil {
			return resp, err
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp, nil
}

// Read 读取邮件；成功时 Lines[1:] 是邮件原文各行
func (c *Client) Read(username string, ordinal int) (protocol.Response, error) {
	if err := c.write(protocol.CmdRead, username, strconv.Itoa(ordinal)); err != nil {
		return protocol.Response{}, err
	}

	status, err := c.readLine(c.opts.Timeout)
	if err != nil {
		return protocol.Response{}, err
	}
	resp := protocol.Response{Lines: []string{status}}
	if !resp.IsOK() {
		return resp, nil
	}

	// 正文长度未知，读到连接空闲为止
	for {
		line, err := c.readLine(c.opts.IdleWindow)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return resp, err
		}
		resp.Lines = append(resp.Lines, line)
	}
	// 去掉响应末尾附加的空行
	if n := len(resp.Lines); n > 1 && resp.Lines[n-1] == "" {
		resp.Lines = resp.Lines[:n-1]
	}
	return resp, nil
}

// Text 把 Read 响应还原为邮件原文
func Text(resp protocol.Response) string {
	if len(resp.Lines) <= 1 {
		return ""
	}
	return strings.Join(resp.Lines[1:], "\n") + "\n"
}

// Del 删除邮件
func (c *Client) Del(username string, ordinal int) (protocol.Response, error) {
	if err := c.write(protocol.CmdDel, username, strconv.Itoa(ordinal)); err != nil {
		return protocol.Response{}, err
	}
	return c.readStatus()
}

// Quit 结束会话并关闭连接
func (c *Client) Quit() (protocol.Response, error) {
	defer c.Close()
	if err := c.write(protocol.CmdQuit); err != nil {
		return protocol.Response{}, err
	}
	return c.readStatus()
}

// Raw 发送任意行并读取一行响应，用于调试
func (c *Client) Raw(lines ...string) (protocol.Response, error) {
	if err := c.write(lines...); err != nil {
		return protocol.Response{}, err
	}
	return c.readStatus()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readStatus() (protocol.Response, error) {
	line, err := c.readLine(c.opts.Timeout)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.Response{Lines: []string{line}}, nil
}

func (c *Client) write(lines ...string) error {
	payload := strings.Join(lines, "\n") + "\n"
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
	if _, err := c.conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

func (c *Client) readLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
