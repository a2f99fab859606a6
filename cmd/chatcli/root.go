package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/config"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/logger"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
)

var (
	flagConfig   string
	flagUserID   string
	flagUserType string

	settings *config.Settings
	log      *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:           "chatcli",
	Short:         "Marketplace chat client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// .env 仅用于本地联调，缺失不报错
		_ = godotenv.Load()

		var opts []config.Option
		if flagConfig != "" {
			opts = append(opts, config.WithFile(flagConfig))
		}
		s, err := config.New(opts...).Load()
		if err != nil {
			return err
		}
		settings = s

		l, err := logger.New(&logger.Config{
			Level:    s.Log.Level,
			Format:   logger.Format(s.Log.Format),
			Console:  s.Log.Console,
			Filename: s.Log.File,
		})
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "config file path (defaults and CHAT_* env apply without it)")
	flags.StringVar(&flagUserID, "user-id", "", "local user id")
	flags.StringVar(&flagUserType, "user-type", "buyer", "local user type: buyer or seller")

	rootCmd.AddCommand(connectCmd, threadsCmd, historyCmd)
}

// userIdentity 解析本地身份参数
func userIdentity() (string, protocol.SenderType, error) {
	if flagUserID == "" {
		return "", "", fmt.Errorf("--user-id is required")
	}
	switch flagUserType {
	case string(protocol.SenderBuyer):
		return flagUserID, protocol.SenderBuyer, nil
	case string(protocol.SenderSeller):
		return flagUserID, protocol.SenderSeller, nil
	default:
		return "", "", fmt.Errorf("invalid --user-type %q", flagUserType)
	}
}
