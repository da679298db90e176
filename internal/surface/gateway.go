package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gosuda/parley/internal/domain"
)

// authenticatedElement is the element name the gateway reports when the
// logged-in shell itself is missing, which means the session is gone.
const authenticatedElement = "authenticated"

// maxResponseBytes caps how much of a gateway response is read.
const maxResponseBytes = 4 << 20

// Gateway is a Surface backed by an automation gateway speaking JSON over HTTP.
// The gateway owns the vendor integration; this client only relays state.
type Gateway struct {
	baseURL string
	token   string
	wait    time.Duration
	client  *http.Client
}

// NewGateway creates a gateway client. wait is the bounded wait the gateway
// applies when looking for an operation's elements.
func NewGateway(baseURL, token string, timeout, wait time.Duration) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		wait:    wait,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ Surface = (*Gateway)(nil) //nolint:gochecknoglobals // compile-time check

type loginRequest struct {
	AccountID string `json:"account_id"`
	Secret    string `json:"secret"` //nolint:gosec // G117: relayed to gateway
}

type challengeRequest struct {
	State []byte `json:"state"`
	Code  string `json:"code"`
}

type probeRequest struct {
	Session domain.SessionBlob `json:"session"`
}

type performRequest struct {
	Session   domain.SessionBlob `json:"session"`
	Operation Operation          `json:"operation"`
	WaitMS    int64              `json:"wait_ms"`
}

type gatewayError struct {
	Error   string `json:"error"`
	Element string `json:"element,omitempty"`
}

func (g *Gateway) Login(ctx context.Context, cred domain.Credential) (*Page, error) {
	var page Page
	if err := g.call(ctx, "/v1/login", loginRequest{AccountID: cred.AccountID, Secret: cred.Secret}, &page); err != nil {
		return nil, fmt.Errorf("surface.Gateway.Login: %w", err)
	}
	return &page, nil
}

func (g *Gateway) SubmitChallenge(ctx context.Context, state []byte, code string) (*Page, error) {
	var page Page
	if err := g.call(ctx, "/v1/challenge", challengeRequest{State: state, Code: code}, &page); err != nil {
		return nil, fmt.Errorf("surface.Gateway.SubmitChallenge: %w", err)
	}
	return &page, nil
}

func (g *Gateway) Probe(ctx context.Context, blob domain.SessionBlob) error {
	if err := g.call(ctx, "/v1/probe", probeRequest{Session: blob}, nil); err != nil {
		return fmt.Errorf("surface.Gateway.Probe: %w", err)
	}
	return nil
}

func (g *Gateway) Perform(ctx context.Context, blob domain.SessionBlob, op Operation) (*Reply, error) {
	var reply Reply
	req := performRequest{Session: blob, Operation: op, WaitMS: g.wait.Milliseconds()}
	if err := g.call(ctx, "/v1/perform", req, &reply); err != nil {
		return nil, fmt.Errorf("surface.Gateway.Perform: %w", err)
	}
	return &reply, nil
}

func (g *Gateway) call(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyStatus turns a gateway error response into one of the surface error
// classes. Anything not explicitly authentication-related stays transient.
func classifyStatus(code int, body []byte) error {
	var ge gatewayError
	_ = json.Unmarshal(body, &ge)

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", code, ErrUnauthorized)
	case ge.Error == "element_missing" && ge.Element == authenticatedElement:
		return fmt.Errorf("status %d: %w", code, ErrUnauthorized)
	case ge.Error == "element_missing":
		return fmt.Errorf("status %d: element %q: %w", code, ge.Element, ErrElementMissing)
	}

	msg := ge.Error
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Errorf("status %d: %s", code, msg)
}
