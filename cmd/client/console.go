package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"twmailer/backend/internal/client"
	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/protocol"
)

const usage = "Invalid command or format. Valid commands are: SEND, LIST, READ, DEL, QUIT"

// mailClient 是控制台使用的协议操作，*client.Client 实现了它
type mailClient interface {
	Welcome() string
	Send(msg domain.Message) (protocol.Response, error)
	List(username string) (protocol.Response, error)
	Read(username string, ordinal int) (protocol.Response, error)
	Del(username string, ordinal int) (protocol.Response, error)
	Quit() (protocol.Response, error)
	Raw(lines ...string) (protocol.Response, error)
}

var _ mailClient = (*client.Client)(nil)

// console 交互式命令循环
type console struct {
	client mailClient
	in     *bufio.Scanner
	out    io.Writer
	errOut io.Writer
}

func newConsole(c mailClient, in io.Reader, out, errOut io.Writer) *console {
	return &console{client: c, in: bufio.NewScanner(in), out: out, errOut: errOut}
}

// Run 打印欢迎行后循环处理命令，直到 QUIT、输入结束或连接出错
func (c *console) Run() error {
	fmt.Fprintf(c.out, "\n<< %s\n\n", c.client.Welcome())

	for {
		fmt.Fprint(c.out, ">> ")
		line, ok := c.readLine()
		if !ok {
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) != 1 || !isCommand(fields[0]) {
			fmt.Fprintln(c.errOut, usage)
			continue
		}

		resp, err := c.execute(fields[0])
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("server closed remote socket or recv error: %w", err)
		}
		fmt.Fprintf(c.out, "<< %s\n", strings.Join(resp.Lines, "\n"))

		if fields[0] == protocol.CmdQuit {
			return nil
		}
	}
}

func (c *console) execute(name string) (protocol.Response, error) {
	switch name {
	case protocol.CmdSend:
		sender, ok := c.promptName("Sender", "Enter the Sender (max 8 characters): ")
		if !ok {
			return protocol.Response{}, io.EOF
		}
		receiver, ok := c.promptName("Receiver", "Enter the Receiver (max 8 characters): ")
		if !ok {
			return protocol.Response{}, io.EOF
		}
		subject, ok := c.prompt("Enter the Subject: ")
		if !ok {
			return protocol.Response{}, io.EOF
		}
		fmt.Fprintln(c.out, "Enter the Message (type '.' on a new line to finish):")
		var body []string
		for {
			line, ok := c.readLine()
			if !ok {
				return protocol.Response{}, io.EOF
			}
			if line == protocol.Terminator {
				break
			}
			body = append(body, line)
		}
		return c.client.Send(domain.Message{Sender: sender, Receiver: receiver, Subject: subject, Body: body})

	case protocol.CmdList:
		username, ok := c.promptName("Username", "Enter the Username you want to List the Inbox: ")
		if !ok {
			return protocol.Response{}, io.EOF
		}
		return c.client.List(username)

	case protocol.CmdRead, protocol.CmdDel:
		username, ok := c.promptName("Username", "Enter the Username: ")
		if !ok {
			return protocol.Response{}, io.EOF
		}
		number, ok := c.prompt("Enter the Message Number: ")
		if !ok {
			return protocol.Response{}, io.EOF
		}
		ordinal, err := strconv.Atoi(strings.TrimSpace(number))
		if err != nil {
			// 交给服务端给出 ERR
			return c.client.Raw(name, username, number)
		}
		if name == protocol.CmdRead {
			return c.client.Read(username, ordinal)
		}
		return c.client.Del(username, ordinal)

	default:
		return c.client.Quit()
	}
}

// promptName 读取一个用户名，不合法时提示原因并重新读取
func (c *console) promptName(label, prompt string) (string, bool) {
	for {
		name, ok := c.prompt(prompt)
		if !ok {
			return "", false
		}
		switch err := domain.ValidateName(name); {
		case err == nil:
			return name, true
		case errors.Is(err, domain.ErrNameTooLong):
			fmt.Fprintln(c.out, "Max. 8 Characters allowed!")
		default:
			fmt.Fprintln(c.out, "Invalid name. Please use a name with characters a-z (lowercase) and digits 0-9. No special characters allowed!")
		}
		fmt.Fprintf(c.out, "Please enter a valid %s.\n", label)
	}
}

func (c *console) prompt(text string) (string, bool) {
	fmt.Fprint(c.out, text)
	return c.readLine()
}

func (c *console) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimRight(c.in.Text(), "\r"), true
}

func isCommand(name string) bool {
	switch name {
	case protocol.CmdSend, protocol.CmdList, protocol.CmdRead, protocol.CmdDel, protocol.CmdQuit:
		return true
	}
	return false
}
