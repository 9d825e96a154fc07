package main

import (
	"github.com/spf13/cobra"

	"github.com/hazyhaar/lunexa/messaging"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools without a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			go a.store.Watch(ctx)

			router := messaging.NewRouter(a.gate,
				messaging.WithPopup(a.store.RequestPopup),
				messaging.WithLogger(logger))
			return a.serveHTTP(ctx, router)
		},
	}
}
