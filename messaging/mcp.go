package messaging

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/internal/kit"
	"github.com/hazyhaar/lunexa/report"
	"github.com/hazyhaar/lunexa/store"
)

// RegisterMCP registers the lunexa tools on srv.
func RegisterMCP(srv *mcp.Server, r *Router, status StatusReader) {
	registerCheckTool(srv, r)
	registerStatusTool(srv, r, status)
}

type checkReq struct {
	CheckPayload
	Wait bool `json:"wait,omitempty"`
}

type checkResp struct {
	Reply
	Result *store.Result `json:"result,omitempty"`
}

func registerCheckTool(srv *mcp.Server, r *Router) {
	tool := &mcp.Tool{
		Name:        "lunexa_check",
		Description: "Score a query/response pair for reliability. Repeated pairs are ignored.",
		InputSchema: kit.InputSchema(map[string]any{
			"query":    map[string]any{"type": "string", "description": "The question or prompt"},
			"response": map[string]any{"type": "string", "description": "The answer to score"},
			"mode":     map[string]any{"type": "string", "enum": []string{"primary", "article", "selection"}},
			"wait":     map[string]any{"type": "boolean", "description": "Wait for the score before returning"},
		}, []string{"query", "response"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		in := req.(*checkReq)
		reply, t, err := r.Check(ctx, in.CheckPayload)
		if err != nil {
			return nil, err
		}
		out := checkResp{Reply: reply}
		if in.Wait && t != nil {
			res, err := t.Wait(ctx)
			if err != nil {
				return nil, err
			}
			out.Result = res
		}
		return out, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var in checkReq
		if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
			return nil, err
		}
		return &in, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(r.logger, "lunexa_check")(endpoint), decode)
}

type statusReq struct {
	Mode string `json:"mode"`
}

type statusResp struct {
	Status store.OperationStatus `json:"status"`
	View   report.View           `json:"view"`
}

func registerStatusTool(srv *mcp.Server, r *Router, status StatusReader) {
	tool := &mcp.Tool{
		Name:        "lunexa_status",
		Description: "Read the latest analysis status and scores for a mode.",
		InputSchema: kit.InputSchema(map[string]any{
			"mode": map[string]any{"type": "string", "enum": []string{"primary", "article", "selection"}},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		in := req.(*statusReq)
		mode, err := capture.ParseMode(in.Mode)
		if err != nil {
			return nil, err
		}
		st, err := status.Status(ctx, mode)
		if err != nil {
			return nil, err
		}
		return statusResp{Status: st, View: report.BuildView(mode, st)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var in statusReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
				return nil, err
			}
		}
		return &in, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(r.logger, "lunexa_status")(endpoint), decode)
}
