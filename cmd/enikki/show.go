package main

import (
	"encoding/json"
	"fmt"

	"github.com/hirokts/enikki/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a stored diary, or list the most recent ones",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			limit, _ := cmd.Flags().GetInt("limit")
			ids, err := app.Store.List(ctx)
			if err != nil {
				return err
			}
			if len(ids) > limit {
				ids = ids[:limit]
			}
			for _, id := range ids {
				doc, err := app.Store.Load(ctx, id)
				if err != nil {
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", doc.ID, doc.Date, doc.Status)
			}
			return nil
		}

		doc, err := app.Store.Load(ctx, args[0])
		if err != nil {
			return err
		}
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

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Bool("json", false, "Print the document as JSON")
	showCmd.Flags().Int("limit", 20, "Number of diaries to list")
}
