package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hazyhaar/lunexa/capture"
)

type theme struct {
	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	muted   lipgloss.Style
	errText lipgloss.Style
	card    lipgloss.Style
	levels  map[string]lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) theme {
	gold := lipgloss.Color("#ffd700")
	return theme{
		title:   r.NewStyle().Bold(true).Foreground(gold),
		label:   r.NewStyle().Width(28),
		value:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Faint(true),
		errText: r.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
		card:    r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(gold).Padding(0, 1),
		levels: map[string]lipgloss.Style{
			LevelExcellent.Class: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")),
			LevelGood.Class:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#01cdfe")),
			LevelWarning.Class:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffb86c")),
			LevelDanger.Class:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f")),
		},
	}
}

var modeTitles = map[capture.Mode]string{
	capture.ModePrimary:   "Chat response",
	capture.ModeArticle:   "Article",
	capture.ModeSelection: "Selection",
}

// Render writes v as a bordered card. Colors follow the capabilities of w.
func Render(w io.Writer, v View) error {
	th := newTheme(lipgloss.NewRenderer(w))

	title := modeTitles[v.Mode]
	if title == "" {
		title = string(v.Mode)
	}
	lines := []string{th.title.Render("LUNEXA · " + title)}

	switch v.State {
	case StateLoading:
		lines = append(lines, th.muted.Render("Analyzing..."))
	case StateEmpty:
		lines = append(lines, th.muted.Render("No analysis yet."))
	}
	if v.Error != "" {
		lines = append(lines, th.errText.Render("Error: "+v.Error))
	}

	if v.Level != nil {
		lvl := th.levels[v.Level.Class]
		lines = append(lines,
			"",
			th.label.Render("CARS")+th.value.Render(v.CARS)+"  "+lvl.Render(v.Level.Label),
		)
		for _, m := range v.Metrics {
			lines = append(lines, th.label.Render(m.Label)+th.value.Render(m.Value))
		}
		lines = append(lines,
			"",
			th.muted.Render("Query:    ")+oneLine(v.Query, 72),
			th.muted.Render("Response: ")+oneLine(v.Response, 72),
		)
		if v.Timestamp != nil {
			lines = append(lines, th.muted.Render("Scored at "+v.Timestamp.Local().Format("2006-01-02 15:04:05")))
		}
	}

	_, err := fmt.Fprintln(w, th.card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	return err
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if t := capture.Truncate(s, n); t != s {
		return t + "..."
	}
	return s
}
