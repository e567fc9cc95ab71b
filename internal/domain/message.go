package domain

import (
	"strings"
	"time"
)

// 邮件文件头字段前缀
const (
	HeaderSender   = "Sender: "
	HeaderReceiver = "Receiver: "
	HeaderSubject  = "Subject: "
	HeaderMessage  = "Message: "
)

// Message 表示一封投递到收件人信箱的文本邮件，写入后不可变。
type Message struct {
	Sender   string   `json:"sender"`
	Receiver string   `json:"receiver"`
	Subject  string   `json:"subject"`
	Body     []string `json:"body"` // 正文行，不含结束符 "."
}

// MessageSummary 表示一次列表快照中的邮件摘要。
//
// Ordinal 只在单次请求的快照内有效，不是持久标识。
type MessageSummary struct {
	Ordinal   int       `json:"ordinal"`
	Subject   string    `json:"subject"`
	Sender    string    `json:"sender"`
	Filename  string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageContent 表示 READ 返回的完整邮件内容。
type MessageContent struct {
	Summary MessageSummary `json:"summary"`
	Text    string         `json:"text"` // 磁盘上保存的原始文本
}

// Render 生成邮件文件的存储文本。
//
// 格式:
//
//	Sender: <s>
//	Receiver: <r>
//	Subject: <subj>
//	Message: <第一行正文>
//	<空行>
//	<其余正文行>
//
// 正文只有一个空行时与空正文的存储文本完全相同，ParseMessage 对两者都返回 nil 正文。
func (m *Message) Render() string {
	var b strings.Builder
	b.WriteString(HeaderSender + m.Sender + "\n")
	b.WriteString(HeaderReceiver + m.Receiver + "\n")
	b.WriteString(HeaderSubject + m.Subject + "\n")

	first := ""
	if len(m.Body) > 0 {
		first = m.Body[0]
	}
	b.WriteString(HeaderMessage + first + "\n\n")

	if len(m.Body) > 1 {
		for _, line := range m.Body[1:] {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ParseMessage 解析 Render 生成的文本，缺失的头部字段保持为空。
func ParseMessage(text string) *Message {
	msg := &Message{}
	lines := strings.Split(text, "\n")
	// 末尾换行会产生一个空元素
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, HeaderSender):
			msg.Sender = strings.TrimPrefix(line, HeaderSender)
		case strings.HasPrefix(line, HeaderReceiver):
			msg.Receiver = strings.TrimPrefix(line, HeaderReceiver)
		case strings.HasPrefix(line, HeaderSubject):
			msg.Subject = strings.TrimPrefix(line, HeaderSubject)
		case strings.HasPrefix(line, HeaderMessage):
			first := strings.TrimPrefix(line, HeaderMessage)
			rest := lines[i+1:]
			// Message 行之后固定跟一个空行
			if len(rest) > 0 && rest[0] == "" {
				rest = rest[1:]
			}
			if first == "" && len(rest) == 0 {
				return msg
			}
			msg.Body = append([]string{first}, rest...)
			return msg
		default:
			return msg
		}
	}
	return msg
}

// SubjectFromText 从存储文本中提取主题行，找不到时返回空字符串。
func SubjectFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, HeaderSubject) {
			return strings.TrimPrefix(line, HeaderSubject)
		}
		if strings.HasPrefix(line, HeaderMessage) {
			break
		}
	}
	return ""
}
