package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestAudio bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Index documents or audio recordings",
	Long: `Reads the given files, splits them into chunks, embeds the chunks and
stores them for retrieval. With --audio the files are transcribed first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAudio, "audio", false, "treat inputs as audio files and transcribe them")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	total := 0
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		var n int
		if ingestAudio {
			n, err = ingestor.IngestAudio(ctx, path, f)
		} else {
			n, err = ingestor.IngestDocument(ctx, path, f)
		}
		f.Close()
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		cmd.Printf("%s: %d chunks indexed\n", path, n)
		total += n
	}
	cmd.Printf("Done. %d chunks from %d files.\n", total, len(args))
	return nil
}
