// Package command 把解码后的命令块转换为类型化的命令。
package command

import (
	"fmt"
	"strconv"
	"strings"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/protocol"
)

// Command 是解析结果，具体类型为 Send、List、Read、Del、Quit 或 Invalid。
type Command interface {
	// Name 返回命令名，用于日志和指标
	Name() string
}

// Send 投递一封邮件
type Send struct {
	Message domain.Message
}

// List 列出信箱
type List struct {
	Username string
}

// Read 读取第 Ordinal 封邮件
type Read struct {
	Username string
	Ordinal  int
}

// Del 删除第 Ordinal 封邮件
type Del struct {
	Username string
	Ordinal  int
}

// Quit 结束会话
type Quit struct{}

// Invalid 表示协议错误，Reason 是给客户端的可读原因
type Invalid struct {
	Command string
	Reason  string
}

func (Send) Name() string    { return protocol.CmdSend }
func (List) Name() string    { return protocol.CmdList }
func (Read) Name() string    { return protocol.CmdRead }
func (Del) Name() string     { return protocol.CmdDel }
func (Quit) Name() string    { return protocol.CmdQuit }
func (Invalid) Name() string { return "INVALID" }

// 协议错误原因
const (
	ReasonUnknownCommand = "Unknown command"
	ReasonFieldCount     = "Wrong number of fields"
	ReasonBadNumber      = "Message number must be an integer"
)

// Parse 解析命令块，失败时返回 Invalid 而不是错误。
func Parse(block protocol.Block) Command {
	name := block.Name()
	fields := block.Fields()

	// 命令行必须恰好是一个词
	if len(strings.Fields(name)) != 1 || strings.TrimSpace(name) != name {
		return Invalid{Command: name, Reason: ReasonUnknownCommand}
	}

	switch name {
	case protocol.CmdSend:
		return parseSend(block)
	case protocol.CmdList:
		if len(fields) != 1 {
			return Invalid{Command: name, Reason: ReasonFieldCount}
		}
		if err := domain.ValidateName(fields[0]); err != nil {
			return invalidName(name, "username", err)
		}
		return List{Username: fields[0]}
	case protocol.CmdRead, protocol.CmdDel:
		username, ordinal, bad := parseTarget(name, fields)
		if bad != nil {
			return *bad
		}
		if name == protocol.CmdRead {
			return Read{Username: username, Ordinal: ordinal}
		}
		return Del{Username: username, Ordinal: ordinal}
	case protocol.CmdQuit:
		if len(fields) != 0 {
			return Invalid{Command: name, Reason: ReasonFieldCount}
		}
		return Quit{}
	default:
		return Invalid{Command: name, Reason: ReasonUnknownCommand}
	}
}

// parseSend 解析 SEND：发件人、收件人、主题、正文直到 "."
func parseSend(block protocol.Block) Command {
	if block.Trailing {
		return Invalid{Command: protocol.CmdSend, Reason: protocol.ReasonInvalidFormat}
	}

	fields := block.Fields()
	if len(fields) < 4 || fields[len(fields)-1] != protocol.Terminator {
		return Invalid{Command: protocol.CmdSend, Reason: protocol.ReasonInvalidFormat}
	}

	sender, receiver, subject := fields[0], fields[1], fields[2]
	if err := domain.ValidateName(sender); err != nil {
		return invalidName(protocol.CmdSend, "sender", err)
	}
	if err := domain.ValidateName(receiver); err != nil {
		return invalidName(protocol.CmdSend, "receiver", err)
	}

	body := fields[3 : len(fields)-1]
	return Send{Message: domain.Message{
		Sender:   sender,
		Receiver: receiver,
		Subject:  subject,
		Body:     append([]string(nil), body...),
	}}
}

// parseTarget 解析 READ/DEL 的用户名和序号
func parseTarget(name string, fields []string) (string, int, *Invalid) {
	if len(fields) != 2 {
		return "", 0, &Invalid{Command: name, Reason: ReasonFieldCount}
	}
	if err := domain.ValidateName(fields[0]); err != nil {
		inv := invalidName(name, "username", err)
		return "", 0, &inv
	}

	ordinal, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return "", 0, &Invalid{Command: name, Reason: ReasonBadNumber}
	}
	return fields[0], ordinal, nil
}

func invalidName(cmd, field string, err error) Invalid {
	return Invalid{Command: cmd, Reason: fmt.Sprintf("Invalid %s: %v", field, err)}
}
