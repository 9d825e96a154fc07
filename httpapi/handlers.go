package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/extract"
	"github.com/hazyhaar/lunexa/internal/shield"
	"github.com/hazyhaar/lunexa/messaging"
	"github.com/hazyhaar/lunexa/report"
)

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg messaging.Message
	if err := decodeBody(r, &msg); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.router.Handle(r.Context(), msg)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, messaging.ErrUnknownType) {
			code = http.StatusBadRequest
		}
		shield.GetLogger(r.Context()).Warn("httpapi: message failed", "type", msg.Type, "error", err)
		jsonErr(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var mode capture.Mode
	if raw := chi.URLParam(r, "mode"); raw != "" {
		m, err := capture.ParseMode(raw)
		if err != nil {
			jsonErr(w, err.Error(), http.StatusBadRequest)
			return
		}
		mode = m
	} else {
		m, err := s.store.CurrentMode(ctx)
		if err != nil {
			jsonErr(w, err.Error(), http.StatusInternalServerError)
			return
		}
		mode = m
	}

	p, err := s.statusPayload(ctx, mode)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type modeBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.CurrentMode(r.Context())
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, modeBody{Mode: string(m)})
}

func (s *Server) handlePutMode(w http.ResponseWriter, r *http.Request) {
	var body modeBody
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := capture.ParseMode(body.Mode)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.SetCurrentMode(r.Context(), m); err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, modeBody{Mode: string(m)})
}

type selectionBody struct {
	Text    string          `json:"text"`
	Preview *report.Preview `json:"preview,omitempty"`
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	text, err := s.store.SelectedText(r.Context())
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p := report.SelectionPreview(text)
	writeJSON(w, http.StatusOK, selectionBody{Text: text, Preview: &p})
}

// handlePutSelection stores a non-blank selection. A blank one keeps the
// previous selection, as clicking away on a page does.
func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var body selectionBody
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	text := extract.Selection(body.Text)
	if text != "" {
		if err := s.store.SetSelectedText(r.Context(), text); err != nil {
			jsonErr(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		var err error
		if text, err = s.store.SelectedText(r.Context()); err != nil {
			jsonErr(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	p := report.SelectionPreview(text)
	writeJSON(w, http.StatusOK, selectionBody{Text: text, Preview: &p})
}

func (s *Server) handleAnalyzeSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	text, err := s.store.SelectedText(ctx)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pair, err := extract.SelectionPair(text)
	if err != nil {
		jsonErr(w, NoSelectionMessage, http.StatusBadRequest)
		return
	}
	s.check(w, r, pair)
}

type articleBody struct {
	HTML string `json:"html"`
	URL  string `json:"url,omitempty"`
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	var body articleBody
	if err := decodeBody(r, &body); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := s.cfg.Article
	if body.URL != "" {
		opts.BaseURL = body.URL
	}
	art, err := extract.Article(body.HTML, opts)
	if err != nil {
		if errors.Is(err, capture.ErrEmpty) {
			writeJSON(w, http.StatusOK, messaging.Reply{
				Status: messaging.StatusStarted,
				Mode:   string(capture.ModeArticle),
				Kind:   capture.KindEmpty.String(),
			})
			return
		}
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.check(w, r, art.Pair())
}

func (s *Server) check(w http.ResponseWriter, r *http.Request, pair capture.Pair) {
	reply, _, err := s.router.Check(r.Context(), messaging.CheckPayload{
		Query:    pair.Query,
		Response: pair.Response,
		Mode:     string(pair.Mode),
	})
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
