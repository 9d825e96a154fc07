package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/extract"
	"github.com/hazyhaar/lunexa/httpapi"
	"github.com/hazyhaar/lunexa/report"
)

const maxArticleBytes = 8 << 20

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var selection, article string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a text selection or an article once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (selection == "") == (article == "") {
				return fmt.Errorf("exactly one of --selection or --article is required")
			}
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var pair capture.Pair
			if selection != "" {
				pair, err = extract.SelectionPair(selection)
				if errors.Is(err, capture.ErrEmpty) {
					return errors.New(httpapi.NoSelectionMessage)
				}
			} else {
				pair, err = articlePair(ctx, article, cfg.ArticleOptions())
			}
			if err != nil {
				return err
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.gate.Dispatch(ctx, pair)
			if err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			_, runErr := t.Wait(waitCtx)

			st, err := a.store.Status(ctx, pair.Mode)
			if err != nil {
				return err
			}
			if err := report.Render(cmd.OutOrStdout(), report.BuildView(pair.Mode, st)); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&selection, "selection", "", "text to score in selection mode")
	cmd.Flags().StringVar(&article, "article", "", "HTML file or http(s) URL to score in article mode")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "maximum wait for the score")
	return cmd
}

// articlePair loads src, a file path or an http(s) URL, and extracts its
// article.
func articlePair(ctx context.Context, src string, opts extract.Options) (capture.Pair, error) {
	var raw []byte
	var err error
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		opts.BaseURL = src
		raw, err = fetch(ctx, src)
	} else {
		raw, err = os.ReadFile(src)
	}
	if err != nil {
		return capture.Pair{}, err
	}
	art, err := extract.Article(string(raw), opts)
	if err != nil {
		return capture.Pair{}, err
	}
	return art.Pair(), nil
}

func fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
}
