package extract

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hazyhaar/lunexa/capture"
)

const longSentence = "The committee reviewed the figures twice before publishing the annual report."

func TestArticle_PrefersArticleElement(t *testing.T) {
	page := `<html><head><title> Budget  News </title></head><body>
<nav>Home | About</nav>
<article><h1>Headline</h1><p>` + longSentence + `</p><script>var x = 1;</script><p>Short.</p></article>
<p>` + longSentence + ` Outside.</p>
</body></html>`

	res, err := Article(page, Options{})
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if res.Title != "Budget News" {
		t.Errorf("title = %q", res.Title)
	}
	if res.Source != "article" {
		t.Errorf("source = %q", res.Source)
	}
	want := "Headline\n" + longSentence + "\nShort."
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if strings.Contains(res.Text, "Outside") || strings.Contains(res.Text, "var x") {
		t.Errorf("text leaked content: %q", res.Text)
	}

	p := res.Pair()
	if p.Query != "Article Analysis: Budget News" || p.Mode != capture.ModeArticle || p.Response != res.Text {
		t.Errorf("pair = %+v", p)
	}
}

func TestArticle_ParagraphFallback(t *testing.T) {
	page := `<html><head><title>T</title></head><body>
<p>tiny</p>
<div><p>` + longSentence + `</p></div>
<p>` + strings.ToUpper(longSentence) + `</p>
</body></html>`

	res, err := Article(page, Options{})
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if res.Source != "paragraphs" {
		t.Errorf("source = %q", res.Source)
	}
	want := longSentence + "\n\n" + strings.ToUpper(longSentence)
	if res.Text != want {
		t.Errorf("text = %q", res.Text)
	}
}

func TestArticle_TooShort(t *testing.T) {
	_, err := Article(`<html><body><article>Just a few words.</article></body></html>`, Options{})
	if !errors.Is(err, capture.ErrEmpty) {
		t.Fatalf("err = %v, want empty", err)
	}
	_, err = Article(`<html><body><p>short</p></body></html>`, Options{})
	if !errors.Is(err, capture.ErrEmpty) {
		t.Fatalf("err = %v, want empty", err)
	}
}

func TestArticle_Truncates(t *testing.T) {
	body := strings.Repeat("é", 6000)
	res, err := Article("<article>"+body+"</article>", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(res.Text); n != capture.MaxTextLen {
		t.Errorf("length = %d", n)
	}
	if !res.Truncated {
		t.Error("Truncated not set")
	}

	res, _ = Article("<article>"+body+"</article>", Options{MaxLen: 100})
	if n := utf8.RuneCountInString(res.Text); n != 100 {
		t.Errorf("custom max length = %d", n)
	}
}

func TestArticle_Markdown(t *testing.T) {
	page := `<html><body><article><h2>Findings</h2><p>` + longSentence + ` <a href="/src">source</a></p>
<ul><li>first point</li><li>second point</li></ul></article></body></html>`

	res, err := Article(page, Options{Format: FormatMarkdown, BaseURL: "https://news.example"})
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if !strings.Contains(res.Text, "## Findings") {
		t.Errorf("heading not converted: %q", res.Text)
	}
	if !strings.Contains(res.Text, "first point") || !strings.Contains(res.Text, "- ") {
		t.Errorf("list not converted: %q", res.Text)
	}
	if !strings.Contains(res.Text, "https://news.example/src") {
		t.Errorf("link not resolved: %q", res.Text)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "markdown": FormatMarkdown, "md": FormatMarkdown} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error")
	}
}

func TestSelection(t *testing.T) {
	got := Selection("  <b>Bold</b> claim &amp; <script>alert(1)</script>evidence  ")
	if got != "Bold claim & evidence" {
		t.Errorf("Selection = %q", got)
	}
	if n := utf8.RuneCountInString(Selection(strings.Repeat("a", 9000))); n != capture.MaxTextLen {
		t.Errorf("selection length = %d", n)
	}
}

func TestSelectionPair(t *testing.T) {
	p, err := SelectionPair("water boils at 100C")
	if err != nil {
		t.Fatal(err)
	}
	if p.Query != "Text Selection Analysis" || p.Mode != capture.ModeSelection || p.Response != "water boils at 100C" {
		t.Errorf("pair = %+v", p)
	}
	if _, err := SelectionPair("   "); !errors.Is(err, capture.ErrEmpty) {
		t.Errorf("blank err = %v", err)
	}
}

func TestArticle_Selector(t *testing.T) {
	page := `<html><body>
<article><p>` + longSentence + ` Teaser.</p></article>
<main><div class="story body" id="main"><p>` + longSentence + ` Story.</p></div></main>
</body></html>`

	for _, sel := range []string{"div.story", "#main", "main div[id=main]", "div.body"} {
		res, err := Article(page, Options{Selector: sel})
		if err != nil {
			t.Fatalf("%s: %v", sel, err)
		}
		if !strings.HasSuffix(res.Text, "Story.") {
			t.Errorf("%s: text = %q", sel, res.Text)
		}
	}

	res, err := Article(page, Options{Selector: "section.none"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(res.Text, "Teaser.") {
		t.Errorf("unmatched selector should fall back to <article>: %q", res.Text)
	}
}
