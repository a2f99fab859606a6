package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/chatapi"
)

var (
	flagBuyerID  string
	flagSellerID string
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage chat threads",
}

var threadsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create (or fetch) the thread between a buyer and a seller",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagBuyerID == "" || flagSellerID == "" {
			return fmt.Errorf("--buyer and --seller are required")
		}

		client, err := apiClient()
		if err != nil {
			return err
		}

		thread, err := client.CreateThread(cmd.Context(), flagBuyerID, flagSellerID)
		if err != nil {
			return err
		}
		fmt.Printf("thread %s (buyer %s, seller %s)\n", thread.ID, thread.BuyerID, thread.SellerID)
		return nil
	},
}

func init() {
	threadsCreateCmd.Flags().StringVar(&flagBuyerID, "buyer", "", "buyer id")
	threadsCreateCmd.Flags().StringVar(&flagSellerID, "seller", "", "seller id")
	threadsCmd.AddCommand(threadsCreateCmd)
}

// apiClient 按已加载配置构建 REST 客户端
func apiClient() (*chatapi.Client, error) {
	return chatapi.New(
		chatapi.WithBaseURL(settings.API.BaseURL),
		chatapi.WithTimeout(settings.API.Timeout),
		chatapi.WithLogger(log),
	)
}
