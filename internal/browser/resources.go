package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed in types.
// The chat page stays usable with images and fonts blocked, and samples
// come back faster.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.ToLower(strings.TrimSpace(t))] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blocked, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(blocked map[string]bool, resType string) bool {
	switch t := strings.ToLower(resType); t {
	case "image":
		return blocked["images"] || blocked[t]
	case "font":
		return blocked["fonts"] || blocked[t]
	case "stylesheet":
		return blocked["stylesheets"] || blocked[t]
	case "document", "script", "xhr", "fetch", "websocket", "eventsource":
		// Never block what the chat itself needs.
		return false
	default:
		return blocked[t]
	}
}
