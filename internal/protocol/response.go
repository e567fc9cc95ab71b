package protocol

import (
	"fmt"
	"strings"

	"twmailer/backend/internal/domain"
)

// 响应状态前缀
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// 常用错误原因
const (
	ReasonInvalidFormat = "Invalid message format"
	ReasonNoInbox       = "User has no inbox"
	ReasonTooLarge      = "Command too large"
	ReasonBusy          = "Server busy"
)

// DefaultWelcome 默认欢迎语
const DefaultWelcome = "Please choose your command. SEND, LIST, READ, DEL, QUIT"

// Response 表示服务端的一帧响应，由若干行组成。
type Response struct {
	Lines []string
}

// OK 成功响应（"OK"）
func OK() Response {
	return Response{Lines: []string{StatusOK}}
}

// OKWithText 成功响应，附带多行正文
func OKWithText(text string) Response {
	return Response{Lines: []string{StatusOK, text}}
}

// Err 失败响应，reason 为空时只返回 "ERR"
func Err(reason string) Response {
	if reason == "" {
		return Response{Lines: []string{StatusErr}}
	}
	return Response{Lines: []string{StatusErr + " " + reason}}
}

// Listing LIST 命令的响应
//
// 格式:
//
//	<count> Mails found in Inbox of <username>
//	<n>. <subject>
func Listing(username string, summaries []domain.MessageSummary) Response {
	lines := make([]string, 0, len(summaries)+1)
	lines = append(lines, fmt.Sprintf("%d Mails found in Inbox of %s", len(summaries), username))
	for _, s := range summaries {
		lines = append(lines, fmt.Sprintf("%d. %s", s.Ordinal, s.Subject))
	}
	return Response{Lines: lines}
}

// Welcome 连接建立后的欢迎行
func Welcome(banner string) Response {
	if banner == "" {
		banner = DefaultWelcome
	}
	return Response{Lines: []string{banner}}
}

// IsOK 判断响应是否以 OK 开头
func (r Response) IsOK() bool {
	return len(r.Lines) > 0 && r.Lines[0] == StatusOK
}

// IsErr 判断响应是否以 ERR 开头
func (r Response) IsErr() bool {
	return len(r.Lines) > 0 && (r.Lines[0] == StatusErr || strings.HasPrefix(r.Lines[0], StatusErr+" "))
}

// Encode 把响应编码为字节，每行以换行结束
func (r Response) Encode() []byte {
	var b strings.Builder
	for _, line := range r.Lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// String 返回编码后的文本
func (r Response) String() string {
	return string(r.Encode())
}
