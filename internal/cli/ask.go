package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/domain"
)

var (
	askConversation string
	askTopK         int
	askShowContext  bool
	askAudio        bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Long: `Answers one question against the indexed documents. Without
--conversation a new conversation is started and its id printed, so a
follow-up question can continue it. With --audio the argument is an
audio file; the recording is transcribed and the transcript asked.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "conversation id to continue")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the retrieved chunks")
	askCmd.Flags().BoolVar(&askAudio, "audio", false, "treat the argument as an audio file and ask its transcript")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	topK := askTopK
	if topK == 0 {
		topK = appCfg.Retrieval.TopK
	}

	var answer domain.Answer
	if askAudio {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		answer, err = assistant.AskAudio(cmd.Context(), path, f, askConversation, topK)
		f.Close()
		if err != nil {
			return err
		}
	} else {
		answer = assistant.Ask(cmd.Context(), strings.Join(args, " "), askConversation, topK)
	}

	cmd.Println(answer.Answer)
	if askShowContext && len(answer.Contexts) > 0 {
		cmd.Println()
		for i, c := range answer.Contexts {
			cmd.Printf("--- context %d ---\n%s\n", i+1, c)
		}
	}
	if answer.NewConversation {
		cmd.Printf("\nConversation: %s\n", answer.ConversationID)
	}
	return nil
}
