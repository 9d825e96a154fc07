package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/dispatch"
	"github.com/hazyhaar/lunexa/internal/dbopen"
	"github.com/hazyhaar/lunexa/scoring"
	"github.com/hazyhaar/lunexa/store"
)

type stubScorer struct{ calls atomic.Int32 }

func (s *stubScorer) Score(_ context.Context, req scoring.Request) (*scoring.Response, error) {
	s.calls.Add(1)
	v := 9.5
	return &scoring.Response{Scores: scoring.Scores{CARS: &v}}, nil
}

type fixture struct {
	router *Router
	gate   *dispatch.Gate
	store  *store.Store
	scorer *stubScorer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.New(store.Config{DB: dbopen.OpenMemory(t)})
	if err != nil {
		t.Fatal(err)
	}
	sc := &stubScorer{}
	g := dispatch.New(sc, st)
	t.Cleanup(g.Wait)
	return &fixture{router: NewRouter(g, opts...), gate: g, store: st, scorer: sc}
}

func msg(t *testing.T, typ Type, payload any) Message {
	t.Helper()
	m := Message{Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		m.Payload = b
	}
	return m
}

func TestHandle_CheckDefaultsToPrimary(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	reply, err := fx.router.Handle(ctx, msg(t, TypeCheckHallucination, CheckPayload{Query: "q", Response: "r"}))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Status != StatusAccepted || reply.Mode != "primary" || reply.ID == "" {
		t.Fatalf("reply = %+v", reply)
	}

	reply, _ = fx.router.Handle(ctx, msg(t, TypeCheckHallucination, CheckPayload{Query: "q", Response: "r", Mode: "gemini"}))
	if reply.Status != StatusIgnored || reply.Kind != "duplicate" {
		t.Fatalf("duplicate reply = %+v", reply)
	}

	reply, _ = fx.router.Handle(ctx, msg(t, TypeCheckHallucination, CheckPayload{Query: "q", Response: " "}))
	if reply.Status != StatusIgnored || reply.Kind != "empty" {
		t.Fatalf("blank reply = %+v", reply)
	}

	fx.gate.Wait()
	if n := fx.scorer.calls.Load(); n != 1 {
		t.Errorf("scorer calls = %d", n)
	}
}

func TestHandle_CheckRejectsUnknownMode(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.router.Handle(context.Background(), msg(t, TypeCheckHallucination, CheckPayload{Query: "q", Response: "r", Mode: "video"}))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHandle_AnalyzeArticle(t *testing.T) {
	var calls int
	fx := newFixture(t, WithArticle(func(ctx context.Context) error {
		calls++
		if calls == 2 {
			return capture.ErrEmpty
		}
		if calls == 3 {
			return errors.New("tab closed")
		}
		return nil
	}))
	ctx := context.Background()

	reply, err := fx.router.Handle(ctx, Message{Type: TypeAnalyzeArticle})
	if err != nil || reply.Status != StatusStarted || reply.Kind != "" {
		t.Fatalf("reply = %+v, %v", reply, err)
	}
	reply, err = fx.router.Handle(ctx, Message{Type: TypeAnalyzeArticle})
	if err != nil || reply.Status != StatusStarted || reply.Kind != "empty" {
		t.Fatalf("empty article reply = %+v, %v", reply, err)
	}
	if _, err := fx.router.Handle(ctx, Message{Type: TypeAnalyzeArticle}); err == nil {
		t.Fatal("hard failure not returned")
	}

	bare := newFixture(t)
	if _, err := bare.router.Handle(ctx, Message{Type: TypeAnalyzeArticle}); err == nil {
		t.Fatal("expected error without article source")
	}
}

func TestHandle_OpenPopup(t *testing.T) {
	opened := 0
	fx := newFixture(t, WithPopup(func(context.Context) error { opened++; return nil }))
	reply, err := fx.router.Handle(context.Background(), Message{Type: TypeOpenPopup})
	if err != nil || reply.Status != StatusOK || opened != 1 {
		t.Fatalf("reply = %+v, err = %v, opened = %d", reply, err, opened)
	}
}

func TestHandle_UnknownType(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.router.Handle(context.Background(), Message{Type: "PING"})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v", err)
	}
}

var testMCPImpl = &mcp.Implementation{Name: "lunexa-test", Version: "0.1.0"}

func mcpSession(t *testing.T, fx *fixture) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	RegisterMCP(srv, fx.router, fx.store)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %+v", name, result.Content)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_CheckAndStatus(t *testing.T) {
	fx := newFixture(t)
	session := mcpSession(t, fx)

	text := callTool(t, session, "lunexa_check", map[string]any{
		"query": "Is water wet?", "response": "Yes.", "mode": "selection", "wait": true,
	})
	var check checkResp
	if err := json.Unmarshal([]byte(text), &check); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if check.Status != StatusAccepted || check.Result == nil || *check.Result.Scores.CARS != 9.5 {
		t.Fatalf("check = %+v", check)
	}

	text = callTool(t, session, "lunexa_status", map[string]any{"mode": "selection"})
	var status statusResp
	if err := json.Unmarshal([]byte(text), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.View.State != "result" || status.View.Level == nil || status.View.Level.Label != "Excellent Reliability" {
		t.Errorf("status view = %+v", status.View)
	}
	if status.Status.Result == nil || status.Status.Result.Query != "Is water wet?" {
		t.Errorf("status = %+v", status.Status)
	}
}

func TestMCP_StatusBadMode(t *testing.T) {
	fx := newFixture(t)
	session := mcpSession(t, fx)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "lunexa_status", Arguments: map[string]any{"mode": "video"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(result.Content) == 0 {
		t.Fatal("tool error without content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok || !strings.Contains(tc.Text, "unknown mode") {
		t.Fatalf("error content = %+v", result.Content[0])
	}
}
