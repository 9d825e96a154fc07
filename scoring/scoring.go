// Package scoring is the client for the remote reliability scoring service.
// The service is opaque: it receives a query/response pair and answers with
// a set of named scores.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/lunexa/capture"
)

const (
	DefaultEndpoint = "https://lunexa-chrome-extension.onrender.com/score"
	DefaultTimeout  = 60 * time.Second

	maxBody = 1 << 20
)

// Scorer issues one scoring request. *Client implements it.
type Scorer interface {
	Score(ctx context.Context, req Request) (*Response, error)
}

// Request is the JSON body posted to the service.
type Request struct {
	Query     string       `json:"query"`
	Response  string       `json:"response"`
	Mode      capture.Mode `json:"mode"`
	Message   string       `json:"message,omitempty"`
	CheckType string       `json:"checkType,omitempty"`
}

// CheckHallucination is the checkType sent with chat captures.
const CheckHallucination = "hallucination"

// RequestFor builds the request body for a captured pair. Chat captures also
// carry the response as message and the hallucination check type.
func RequestFor(p capture.Pair) Request {
	req := Request{Query: p.Query, Response: p.Response, Mode: p.Mode}
	if p.Mode == capture.ModePrimary {
		req.Message = p.Response
		req.CheckType = CheckHallucination
	}
	return req
}

// Scores holds the metrics returned by the service. Any of them may be
// missing; the service reports them as percentages except CARS, which lies
// in [-100, 100].
type Scores struct {
	CARS                     *float64 `json:"CARS,omitempty"`
	FactualAccuracy          *float64 `json:"Factual_Accuracy,omitempty"`
	ReasoningIntegrity       *float64 `json:"Reasoning_Integrity,omitempty"`
	EvidenceAlignment        *float64 `json:"Evidence_Alignment,omitempty"`
	Consistency              *float64 `json:"Consistency,omitempty"`
	FakeNewsLikelihood       *float64 `json:"Fake_News_Likelihood,omitempty"`
	TrustConfidenceScore     *float64 `json:"Trust_Confidence_Score,omitempty"`
	HallucinationProbability *float64 `json:"Hallucination_Probability,omitempty"`
}

// Response is the decoded service reply.
type Response struct {
	Query    string          `json:"query,omitempty"`
	Response string          `json:"response,omitempty"`
	Scores   Scores          `json:"scores"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// Config for a Client.
type Config struct {
	Endpoint   string        // Default: DefaultEndpoint.
	Timeout    time.Duration // Default: DefaultTimeout.
	HTTPClient *http.Client  // Default: a client with Timeout.
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client posts pairs to the scoring endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// Score posts req and decodes the reply. Transport errors and non-2xx
// statuses are NETWORK_FAILURE; an undecodable body or one without a
// "scores" object is DECODE_FAILURE.
func (c *Client) Score(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("scoring: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &capture.Error{Kind: capture.KindNetwork, Op: "scoring: build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &capture.Error{Kind: capture.KindNetwork, Op: "scoring: POST " + c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &capture.Error{Kind: capture.KindNetwork, Op: "scoring: read body", Err: err}
	}

	c.logger.Debug("scoring: response", "status", resp.StatusCode,
		"bytes", len(raw), "mode", req.Mode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, capture.Errorf(capture.KindNetwork, "scoring: POST "+c.endpoint,
			"HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return Decode(raw)
}

// Decode parses a service reply.
func Decode(raw []byte) (*Response, error) {
	var envelope struct {
		Response
		Scores json.RawMessage `json:"scores"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &capture.Error{Kind: capture.KindDecode, Op: "scoring: decode", Err: err}
	}
	if len(envelope.Scores) == 0 || string(envelope.Scores) == "null" {
		return nil, capture.Errorf(capture.KindDecode, "scoring: decode", "missing scores object")
	}

	out := envelope.Response
	if err := json.Unmarshal(envelope.Scores, &out.Scores); err != nil {
		return nil, &capture.Error{Kind: capture.KindDecode, Op: "scoring: decode scores", Err: err}
	}
	return &out, nil
}
