package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

const scoreReply = `{"query":"q","response":"r","scores":{"CARS":62.5,"Factual_Accuracy":80,"Hallucination_Probability":20}}`

// setup writes a config pointing at a stub scoring server and a temp store.
func setup(t *testing.T) (cfgPath string, calls *int) {
	t.Helper()
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, scoreReply)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	content := "log_level: error\n" +
		"store:\n  path: " + filepath.Join(dir, "lunexa.db") + "\n" +
		"scoring:\n  endpoint: " + srv.URL + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, &n
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeSelectionThenStatus(t *testing.T) {
	cfgPath, calls := setup(t)

	out, err := run(t, "", "--config", cfgPath, "analyze", "--selection", "The moon is made of cheese.")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if *calls != 1 {
		t.Errorf("scoring calls = %d", *calls)
	}
	if !strings.Contains(out, "62.50%") {
		t.Errorf("report missing CARS:\n%s", out)
	}

	out, err = run(t, "", "--config", cfgPath, "status", "selection", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var got struct {
		Status struct {
			InFlight bool `json:"isAnalyzing"`
			Result   *struct {
				Query    string `json:"query"`
				Response string `json:"response"`
			} `json:"result"`
			Error *string `json:"error"`
		} `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if got.Status.InFlight || got.Status.Error != nil || got.Status.Result == nil {
		t.Fatalf("status = %+v", got.Status)
	}
	if got.Status.Result.Query != "Text Selection Analysis" || got.Status.Result.Response != "The moon is made of cheese." {
		t.Errorf("result = %+v", got.Status.Result)
	}
}

func TestAnalyzeArticleFile(t *testing.T) {
	cfgPath, calls := setup(t)
	page := filepath.Join(t.TempDir(), "page.html")
	html := `<html><head><title>Tides</title></head><body>
<p>Tides are driven mostly by the gravitational pull of the moon on the oceans.</p>
</body></html>`
	if err := os.WriteFile(page, []byte(html), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "", "--config", cfgPath, "analyze", "--article", page); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if *calls != 1 {
		t.Errorf("scoring calls = %d", *calls)
	}
}

func TestAnalyzeRequiresOneSource(t *testing.T) {
	cfgPath, _ := setup(t)
	if _, err := run(t, "", "--config", cfgPath, "analyze"); err == nil {
		t.Error("no source accepted")
	}
	if _, err := run(t, "", "--config", cfgPath, "analyze", "--selection", "   "); err == nil ||
		!strings.Contains(err.Error(), "select some text") {
		t.Errorf("blank selection: %v", err)
	}
}

func TestAnalyzeScoringFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "log_level: error\nstore:\n  path: " + filepath.Join(dir, "l.db") + "\nscoring:\n  endpoint: " + srv.URL + "\n"
	os.WriteFile(cfgPath, []byte(content), 0o600)

	out, err := run(t, "", "--config", cfgPath, "analyze", "--selection", "anything at all")
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out, "502") {
		t.Errorf("report should show the error:\n%s", out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	out, err := run(t, "", "config", "init", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}
	if _, err := run(t, "", "config", "init", path); err == nil {
		t.Error("existing config overwritten without --force")
	}
	if _, err := run(t, "", "config", "init", "--force", path); err != nil {
		t.Errorf("--force: %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "s3cret\n", "config", "hash-password")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not match: %v", err)
	}
	if _, err := run(t, "\n", "config", "hash-password"); err == nil {
		t.Error("empty password accepted")
	}
}
