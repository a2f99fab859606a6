package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/chat"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/delivery"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/eventbus"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/transport"
)

var connectCmd = &cobra.Command{
	Use:   "connect <thread-id>",
	Short: "Join a chat thread interactively",
	Long: `Join a chat thread and exchange messages from the terminal.

Each input line is sent as a message. Commands:
  /typing   send a typing indicator
  /retry ID resend a failed message
  /quit     leave`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	threadID := args[0]
	userID, userType, err := userIdentity()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := chat.NewSession(threadID, userID, userType,
		chat.WithSettings(settings),
		chat.WithTransport(transport.WithLogger(log)),
		chat.WithOnChange(func(m delivery.Message) {
			fmt.Printf("  [%s] %s\n", m.Status, m.MessageID)
		}),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	printEvents(session.Events())

	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return chatLoop(ctx, os.Stdin, session)
}

// chatLoop 逐行处理终端输入，信号取消时立即返回
// Scan 阻塞且无法被 ctx 打断，放到独立协程喂行通道，
// 主循环在输入与取消之间选择，保证 Close 及时执行
func chatLoop(ctx context.Context, in io.Reader, session *chat.Session) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if !handleLine(session, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handleLine 处理单行输入，返回 false 表示退出
func handleLine(session *chat.Session, line string) bool {
	switch {
	case line == "":
	case line == "/quit":
		return false
	case line == "/typing":
		session.Typing()
	case strings.HasPrefix(line, "/retry "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/retry "))
		if err := session.Retry(id); err != nil {
			fmt.Printf("  retry %s: %v\n", id, err)
		}
	default:
		if _, err := session.SendText(line); err != nil {
			fmt.Printf("  send failed, use /retry to resend: %v\n", err)
		}
	}
	return true
}

// printEvents 订阅连接与消息事件并打印到终端
func printEvents(bus *eventbus.Bus) {
	bus.On(eventbus.EventConnected, func(payload any) {
		info := payload.(transport.ConnectedInfo)
		if info.Attempt > 0 {
			fmt.Printf("* reconnected to %s\n", info.ThreadID)
			return
		}
		fmt.Printf("* connected to %s\n", info.ThreadID)
	})
	bus.On(eventbus.EventReconnecting, func(payload any) {
		info := payload.(transport.ReconnectInfo)
		fmt.Printf("* reconnecting (attempt %d, in %s)\n", info.Attempt, info.Delay)
	})
	bus.On(eventbus.EventDisconnected, func(payload any) {
		info := payload.(transport.DisconnectInfo)
		fmt.Printf("* disconnected (%d %s)\n", info.Code, info.Reason)
	})
	bus.On(eventbus.EventMessage, func(payload any) {
		env := payload.(*protocol.Envelope)
		fmt.Printf("%s %s: %s\n", env.Timestamp.Local().Format("15:04:05"), env.SenderID, env.Message)
	})
	bus.On(eventbus.EventTyping, func(payload any) {
		env := payload.(*protocol.Envelope)
		fmt.Printf("* %s is typing...\n", env.SenderID)
	})
	bus.On(eventbus.EventUserJoined, func(payload any) {
		env := payload.(*protocol.Envelope)
		fmt.Printf("* %s joined\n", env.SenderID)
	})
	bus.On(eventbus.EventUserLeft, func(payload any) {
		env := payload.(*protocol.Envelope)
		fmt.Printf("* %s left\n", env.SenderID)
	})
	bus.On(eventbus.EventError, func(payload any) {
		fmt.Printf("* error: %v\n", payload)
	})
}
