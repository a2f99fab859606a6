package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/history"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/window"
)

var (
	flagLimit  int
	flagOffset int
	flagRows   int
	flagScroll int
)

var historyCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show thread message history",
	Long: `Fetch thread history over REST and print a scrollable view.

--rows and --scroll drive the same windowing math the chat view uses:
only the visible rows (plus overscan) are materialized.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	flags := historyCmd.Flags()
	flags.IntVar(&flagLimit, "limit", 50, "messages to fetch per page")
	flags.IntVar(&flagOffset, "offset", 0, "messages to skip")
	flags.IntVar(&flagRows, "rows", 20, "visible rows of the view")
	flags.IntVar(&flagScroll, "scroll", 0, "scroll position in rows from the top")
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}
	store := history.New(client)

	page, err := store.Messages(cmd.Context(), args[0], flagLimit, flagOffset)
	if err != nil {
		return err
	}
	if len(page.Data) == 0 {
		fmt.Println("no messages")
		return nil
	}

	// 终端行即渲染单元，行高取 1
	w := window.New(1)
	start, end := w.Slice(len(page.Data), flagRows, flagScroll)

	fmt.Printf("messages %d-%d of %d (total %d)\n",
		flagOffset+start+1, flagOffset+end+1, len(page.Data), page.Total)
	for _, m := range page.Data[start : end+1] {
		marker := " "
		if m.ReadAt != nil {
			marker = "r"
		}
		fmt.Printf("%s %s [%s] %s: %s\n",
			m.CreatedAt.Local().Format("2006-01-02 15:04"), marker, m.SenderType, m.SenderID, m.Text)
	}
	return nil
}
