// chatcli 是聊天服务的命令行客户端，用于联调与演示：
// 实时会话（connect）、会话管理（threads）与历史消息（history）。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
