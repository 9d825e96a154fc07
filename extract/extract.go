// Package extract turns page content into capture pairs for the article and
// selection modes.
package extract

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/lunexa/capture"
)

// MinTextLen is the length a paragraph, and the final article text, must
// exceed to count as content.
const MinTextLen = 50

// Format selects the article text rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "text", "markdown" and "" (text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("extract: unknown format %q", s)
}

// Options for Article.
type Options struct {
	Format  Format // Default: FormatText.
	MaxLen  int    // Default: capture.MaxTextLen.
	BaseURL string // resolves relative links in markdown output
	// Selector, when set, names the content element instead of the first
	// <article>. See selector.go for the supported syntax.
	Selector string
}

func (o *Options) defaults() {
	if o.Format == "" {
		o.Format = FormatText
	}
	if o.MaxLen <= 0 {
		o.MaxLen = capture.MaxTextLen
	}
}

// ArticleResult is the extracted article.
type ArticleResult struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	Source    string `json:"source"` // "article" or "paragraphs"
	Truncated bool   `json:"truncated,omitempty"`
}

// Pair returns the article as an article-mode capture.
func (a *ArticleResult) Pair() capture.Pair {
	return capture.Pair{
		Query:    capture.ArticleQueryPrefix + a.Title,
		Response: a.Text,
		Mode:     capture.ModeArticle,
	}
}

// Article extracts the main text of an HTML page. The first <article>
// element wins; without one, every <p> whose text exceeds MinTextLen is
// kept, separated by blank lines. Pages whose text does not exceed
// MinTextLen fail with EMPTY.
func Article(rawHTML string, opts Options) (*ArticleResult, error) {
	opts.defaults()

	doc, err := xhtml.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	res := &ArticleResult{Title: findTitle(doc)}
	var nodes []*xhtml.Node
	if root := findRoot(doc, opts.Selector); root != nil {
		res.Source = "article"
		nodes = []*xhtml.Node{root}
	} else {
		res.Source = "paragraphs"
		for _, p := range findAll(doc, atom.P) {
			if utf8.RuneCountInString(innerText(p)) > MinTextLen {
				nodes = append(nodes, p)
			}
		}
	}

	var text string
	switch opts.Format {
	case FormatMarkdown:
		text, err = toMarkdown(nodes, opts.BaseURL)
		if err != nil {
			return nil, err
		}
	default:
		parts := make([]string, 0, len(nodes))
		for _, n := range nodes {
			parts = append(parts, innerText(n))
		}
		text = strings.Join(parts, "\n\n")
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MinTextLen {
		return nil, capture.Errorf(capture.KindEmpty, "extract: article", "no article text found")
	}
	if utf8.RuneCountInString(text) > opts.MaxLen {
		text = capture.Truncate(text, opts.MaxLen)
		res.Truncated = true
	}
	res.Text = text
	return res, nil
}

func findRoot(doc *xhtml.Node, selector string) *xhtml.Node {
	if selector != "" {
		if n := querySelector(doc, selector); n != nil {
			return n
		}
	}
	return findFirst(doc, atom.Article)
}

var articlePolicy = bluemonday.UGCPolicy()

func toMarkdown(nodes []*xhtml.Node, baseURL string) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := xhtml.Render(&buf, n); err != nil {
			return "", fmt.Errorf("extract: render html: %w", err)
		}
		buf.WriteByte('\n')
	}
	clean := articlePolicy.SanitizeBytes(buf.Bytes())

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	var md string
	var err error
	if baseURL != "" {
		md, err = conv.ConvertString(string(clean), converter.WithDomain(baseURL))
	} else {
		md, err = conv.ConvertString(string(clean))
	}
	if err != nil {
		return "", fmt.Errorf("extract: markdown: %w", err)
	}
	return md, nil
}

var selectionPolicy = bluemonday.StrictPolicy()

// Selection cleans user-selected text: markup is stripped, entities are
// decoded, surrounding whitespace is trimmed and the result is capped at
// capture.MaxTextLen runes.
func Selection(raw string) string {
	text := selectionPolicy.Sanitize(raw)
	text = html.UnescapeString(text)
	text = strings.TrimSpace(text)
	return capture.Truncate(text, capture.MaxTextLen)
}

// SelectionPair returns text as a selection-mode capture. Blank text fails
// with EMPTY.
func SelectionPair(text string) (capture.Pair, error) {
	text = Selection(text)
	if text == "" {
		return capture.Pair{}, capture.Errorf(capture.KindEmpty, "extract: selection", "no text selected")
	}
	return capture.Pair{Query: capture.SelectionQuery, Response: text, Mode: capture.ModeSelection}, nil
}
