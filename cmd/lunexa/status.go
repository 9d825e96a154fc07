package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/report"
	"github.com/hazyhaar/lunexa/store"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [mode]",
		Short: "Print the last result of a mode (default: the current mode)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path, store.Config{Logger: logger})
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()

			var mode capture.Mode
			if len(args) == 1 {
				mode, err = capture.ParseMode(args[0])
			} else {
				mode, err = st.CurrentMode(ctx)
			}
			if err != nil {
				return err
			}
			status, err := st.Status(ctx, mode)
			if err != nil {
				return err
			}
			view := report.BuildView(mode, status)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"status": status, "view": view})
			}
			if err := report.Render(cmd.OutOrStdout(), view); err != nil {
				return err
			}
			if mode == capture.ModeSelection {
				text, err := st.SelectedText(ctx)
				if err != nil {
					return err
				}
				p := report.SelectionPreview(text)
				printf(cmd, "\nSelection (%d chars, %d words): %s\n", p.Chars, p.Words, p.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status and view as JSON")
	return cmd
}
