package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"ragchat/internal/domain"
)

var conversationLimit int

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	RunE:  runConversationList,
}

var conversationDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationDelete,
}

var conversationClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every conversation and all chat history",
	RunE:  runConversationClear,
}

var conversationMoveCmd = &cobra.Command{
	Use:   "move [id] [folder-id]",
	Short: "Move a conversation into a folder (empty folder-id to unfile)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runConversationMove,
}

func init() {
	conversationListCmd.Flags().IntVarP(&conversationLimit, "limit", "n", 50, "maximum number of conversations")
	conversationCmd.AddCommand(conversationListCmd)
	conversationCmd.AddCommand(conversationDeleteCmd)
	conversationCmd.AddCommand(conversationMoveCmd)
	conversationCmd.AddCommand(conversationClearCmd)
	rootCmd.AddCommand(conversationCmd)
}

func runConversationClear(cmd *cobra.Command, args []string) error {
	if err := convos.ClearHistory(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("History cleared.")
	return nil
}

func runConversationList(cmd *cobra.Command, args []string) error {
	convs, err := convos.ListConversations(cmd.Context(), conversationLimit)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		cmd.Println("No conversations.")
		return nil
	}
	for _, c := range convs {
		line := c.ID + "  " + c.Title
		if c.FolderID != "" {
			line += "  (folder " + c.FolderID + ")"
		}
		cmd.Println(line)
	}
	return nil
}

func runConversationMove(cmd *cobra.Command, args []string) error {
	conv, err := convos.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	conv.FolderID = ""
	if len(args) == 2 {
		conv.FolderID = args[1]
	}
	if err := convos.UpdateConversation(cmd.Context(), conv); err != nil {
		return err
	}
	cmd.Println("Moved.")
	return nil
}

func runConversationDelete(cmd *cobra.Command, args []string) error {
	err := convos.DeleteConversation(cmd.Context(), args[0])
	var partial *domain.PartialDeleteError
	if errors.As(err, &partial) {
		cmd.PrintErrf("Conversation deleted, but some messages could not be removed: %v\n", partial.Err)
		return nil
	}
	if err != nil {
		return err
	}
	cmd.Println("Deleted.")
	return nil
}
