package cli

import (
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 100, "maximum number of messages")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	messages, err := convos.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		cmd.Println("No messages.")
		return nil
	}
	for _, msg := range messages {
		cmd.Printf("[%s]\n", msg.Timestamp.Local().Format("2006-01-02 15:04"))
		cmd.Printf("You: %s\n", msg.Query)
		cmd.Printf("Assistant: %s\n\n", msg.Response)
	}
	return nil
}
