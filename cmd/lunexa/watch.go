package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/chatwatch"
	"github.com/hazyhaar/lunexa/internal/browser"
	"github.com/hazyhaar/lunexa/messaging"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var pageURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the chat page in Chrome, score settled answers and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if pageURL != "" {
				cfg.Chat.URL = pageURL
			}
			ctx := cmd.Context()

			var w *chatwatch.Watcher
			a, err := newApp(cfg, logger, withOnAccept(func(m capture.Mode) {
				if w != nil {
					w.OnAccept(m)
				}
			}))
			if err != nil {
				return err
			}
			defer a.Close()

			mgr := browser.NewManager(browser.Config{
				RemoteURL:        cfg.Browser.Remote,
				Headless:         cfg.Browser.Headless,
				Stealth:          cfg.Browser.Stealth,
				ResourceBlocking: cfg.Browser.ResourceBlocking,
				Logger:           logger,
			})
			if _, err := mgr.Start(ctx); err != nil {
				return err
			}
			defer mgr.Close()

			tab, err := browser.OpenTab(ctx, mgr, cfg.Chat.URL)
			if err != nil {
				return err
			}
			defer tab.Close()
			trig := browser.TriggerOptions{
				SendSelector:   cfg.Chat.SendSelector,
				FloatingButton: cfg.Chat.FloatingButton,
			}
			if err := tab.InstallTriggers(trig, logger); err != nil {
				return err
			}
			page := browser.NewChatProbe(tab, cfg.Chat.GeneratingSelector)

			w, err = chatwatch.New(chatwatch.Config{
				Page:         page,
				Gate:         a.gate,
				Selection:    a.store,
				HostContains: cfg.Chat.HostContains,
				Interval:     cfg.Chat.SampleInterval,
				StartDelay:   cfg.Chat.StartDelay,
				Article:      cfg.ArticleOptions(),
				Popup:        a.store.RequestPopup,
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			router := messaging.NewRouter(a.gate,
				messaging.WithArticle(func(ctx context.Context) error {
					_, err := w.AnalyzeArticle(ctx)
					return err
				}),
				messaging.WithPopup(a.store.RequestPopup),
				messaging.WithLogger(logger))

			logger.Info("lunexa: watching", "url", cfg.Chat.URL, "http", cfg.HTTP.Addr)
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				w.Run(ctx, page)
				return nil
			})
			eg.Go(func() error {
				a.store.Watch(ctx)
				return nil
			})
			eg.Go(func() error { return a.serveHTTP(ctx, router) })
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "chat page to open (overrides chat.url)")
	return cmd
}
