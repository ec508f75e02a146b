package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hirokts/enikki/internal/presentation/tui"
	"github.com/hirokts/enikki/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <record.json|->",
	Short: "Generate one diary from a conversation record and print it",
	Long: `Reads a conversation record (JSON, "-" for stdin), runs the full pipeline in
the foreground and prints the stored diary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		rec, err := runner.DecodeRecordJSON(data)
		if err != nil {
			return err
		}

		app, logger, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := context.Background()
		id, err := app.Runner.Submit(ctx, rec)
		if err != nil {
			return err
		}
		logger.Info("Run submitted", "run_id", id)

		// Close waits for the run.
		app.Runner.Close()

		doc, err := app.Store.Load(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}

		rendered, err := tui.NewRenderer()(tui.DiaryMarkdown(doc))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("json", false, "Print the stored document as JSON")
}
