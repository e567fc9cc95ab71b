// Package protocol 实现信件交换协议的线路编解码。
//
// 协议没有长度前缀，一个命令块由命令名行和若干字段行组成，结束条件按命令形态确定：
//   - SEND: 发件人、收件人、主题三行，随后是正文行，直到一行只有 "."
//   - LIST: 一行用户名
//   - READ/DEL: 用户名行和序号行
//   - QUIT 及未知命令: 只有命令名行
//
// 原始字节中的两字符转义序列 `\n` 在解析前被替换为真正的换行。
// 本包不做任何 I/O。
package protocol

import (
	"bytes"
	"errors"
	"strings"
)

// 命令名
const (
	CmdSend = "SEND"
	CmdList = "LIST"
	CmdRead = "READ"
	CmdDel  = "DEL"
	CmdQuit = "QUIT"
)

// Terminator 是 SEND 正文的结束行
const Terminator = "."

// DefaultMaxBlockBytes 单个命令块的默认最大字节数
const DefaultMaxBlockBytes = 1 << 20

var (
	// ErrNeedMoreData 缓冲区中还没有完整的命令块
	ErrNeedMoreData = errors.New("need more data")
	// ErrBlockTooLarge 命令块超过大小上限
	ErrBlockTooLarge = errors.New("command block too large")
)

var escapedNewline = []byte(`\n`)

// Block 表示一个完整解码的命令块。
type Block struct {
	Lines []string // 第一行是命令名，不含行尾
	// Trailing 表示 SEND 结束行之后在同一次传输中还有非空内容
	Trailing bool
}

// Name 返回命令名行
func (b Block) Name() string {
	if len(b.Lines) == 0 {
		return ""
	}
	return b.Lines[0]
}

// Fields 返回命令名之后的字段行
func (b Block) Fields() []string {
	if len(b.Lines) <= 1 {
		return nil
	}
	return b.Lines[1:]
}

// Decoder 累积字节流并切分出命令块。
type Decoder struct {
	buf      []byte // 已完成转义替换的数据
	pending  []byte // 末尾可能是半个转义序列的反斜杠
	maxBytes int
}

// NewDecoder 创建解码器
//
// 参数:
//   - maxBytes: 单个命令块的最大字节数，<=0 时使用 DefaultMaxBlockBytes
func NewDecoder(maxBytes int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBlockBytes
	}
	return &Decoder{maxBytes: maxBytes}
}

// Feed 追加一次读取得到的原始字节
func (d *Decoder) Feed(chunk []byte) {
	data := chunk
	if len(d.pending) > 0 {
		data = append(d.pending, chunk...)
		d.pending = nil
	}
	// 反斜杠可能和下一次读取的 'n' 组成转义序列
	if n := len(data); n > 0 && data[n-1] == '\\' {
		d.pending = []byte{'\\'}
		data = data[:n-1]
	}
	d.buf = append(d.buf, bytes.ReplaceAll(data, escapedNewline, []byte("\n"))...)
}

// Buffered 返回尚未被解码的字节数
func (d *Decoder) Buffered() int {
	return len(d.buf) + len(d.pending)
}

// Reset 丢弃所有缓冲数据
func (d *Decoder) Reset() {
	d.buf = nil
	d.pending = nil
}

// Decode 尝试从缓冲区切分出一个完整命令块。
//
// 返回值:
//   - Block: 完整命令块
//   - error: ErrNeedMoreData 表示需要继续读取；ErrBlockTooLarge 表示缓冲区超限
func (d *Decoder) Decode() (Block, error) {
	d.skipBlankLines()

	lines, consumed, complete := d.scan()
	if !complete {
		if d.Buffered() > d.maxBytes {
			return Block{}, ErrBlockTooLarge
		}
		return Block{}, ErrNeedMoreData
	}

	block := Block{Lines: lines}
	rest := d.buf[consumed:]

	if block.Name() == CmdSend {
		// SEND 结束行之后同一次传输里的内容属于本命令
		if len(bytes.TrimSpace(rest)) > 0 || len(d.pending) > 0 {
			block.Trailing = true
		}
		rest = nil
		d.pending = nil
	}

	d.buf = append([]byte(nil), rest...)
	return block, nil
}

// scan 按命令形态查找命令块的结束位置
func (d *Decoder) scan() (lines []string, consumed int, complete bool) {
	pos := 0
	next := func() (string, bool) {
		idx := bytes.IndexByte(d.buf[pos:], '\n')
		if idx < 0 {
			return "", false
		}
		line := string(d.buf[pos : pos+idx])
		pos += idx + 1
		return strings.TrimSuffix(line, "\r"), true
	}

	name, ok := next()
	if !ok {
		// 原始控制台客户端发送 QUIT 时不带换行
		if rest := strings.TrimSuffix(string(d.buf), "\r"); rest == CmdQuit && len(d.pending) == 0 {
			return []string{CmdQuit}, len(d.buf), true
		}
		return nil, 0, false
	}
	lines = append(lines, name)

	switch name {
	case CmdSend:
		for i := 0; i < 3; i++ {
			field, ok := next()
			if !ok {
				return nil, 0, false
			}
			lines = append(lines, field)
		}
		for {
			line, ok := next()
			if !ok {
				return nil, 0, false
			}
			lines = append(lines, line)
			if line == Terminator {
				return lines, pos, true
			}
		}
	case CmdList, CmdRead, CmdDel:
		want := 1
		if name != CmdList {
			want = 2
		}
		for i := 0; i < want; i++ {
			field, ok := next()
			if !ok {
				return nil, 0, false
			}
			lines = append(lines, field)
		}
		return lines, pos, true
	case CmdQuit:
		return lines, pos, true
	default:
		// 无法识别的命令：本次传输的剩余内容都归入这个命令块，保证一问一答。
		// 缓冲区以半行结尾时说明传输尚未结束，等到行尾再一并消费。
		for {
			line, ok := next()
			if !ok {
				break
			}
			lines = append(lines, line)
		}
		if pos < len(d.buf) || len(d.pending) > 0 {
			return nil, 0, false
		}
		return lines, pos, true
	}
}

// skipBlankLines 丢弃命令块之间的空行
func (d *Decoder) skipBlankLines() {
	for len(d.buf) > 0 {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		if len(bytes.TrimSpace(d.buf[:idx])) != 0 {
			return
		}
		d.buf = d.buf[idx+1:]
	}
}
