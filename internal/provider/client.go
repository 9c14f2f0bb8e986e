package provider

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

	"github.com/sony/gobreaker/v2"

	"lembra/internal/config"
	"lembra/internal/types"
)

// ErrNoWhatsAppConnection is the gateway error code meaning the WhatsApp
// session behind the configured user/queue is disconnected. It is detected
// purely for operational triage logging; the outcome stays FAILED and there
// is no retry.
const ErrNoWhatsAppConnection = "ERR_NO_WHATSAPP_CONNECTION"

// Client makes the outbound gateway call for one reminder. All calls share a
// circuit breaker so a dead gateway fails fast instead of burning the full
// timeout per reminder. There is deliberately no retry: a failed send is
// terminal for its reminder.
type Client struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
	logger    *slog.Logger
}

// NewClient creates a gateway client from provider call settings.
func NewClient(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "whatsapp-gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker:   cb,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Send performs one gateway call driven by the provider record and returns
// the outcome. Transport failures never surface as errors; they fold into a
// non-OK result whose Body carries the error detail, because the outcome is
// recorded on the send log either way.
func (c *Client) Send(ctx context.Context, p types.MessagingProvider, phoneDigits, messageText string) types.DispatchResult {
	req, err := c.buildRequest(ctx, p, phoneDigits, messageText)
	if err != nil {
		return failureResult(fmt.Errorf("building gateway request: %w", err))
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.http.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// 5xx trips the breaker; the response still flows back so the
		// body can be recorded.
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("gateway returned %d", r.StatusCode)
		}
		return r, nil
	})
	if resp == nil {
		return failureResult(err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.DispatchResult{
			StatusCode: resp.StatusCode,
			Body:       map[string]any{"error": fmt.Sprintf("reading gateway response: %v", readErr)},
		}
	}
	body := parseBody(raw)

	result := types.DispatchResult{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       body,
	}

	if !result.OK && strings.Contains(string(raw), ErrNoWhatsAppConnection) {
		c.logger.Error("gateway has no WhatsApp connection",
			"provider_id", p.ID,
			"user_id", p.UserID,
			"queue_id", p.QueueID,
			"status_code", resp.StatusCode,
		)
	}

	return result
}

// buildRequest assembles the HTTP request from the provider record. GET
// requests send no body; other methods get the template-driven payload in
// the configured encoding (json by default).
func (c *Client) buildRequest(ctx context.Context, p types.MessagingProvider, phoneDigits, messageText string) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(p.HTTPMethod))
	if method == "" {
		method = http.MethodPost
	}

	var (
		body        io.Reader
		contentType string
	)
	if method != http.MethodGet {
		switch p.ContentType {
		case types.ContentTypeFormData:
			buf, ct, err := BuildFormData(p, phoneDigits, messageText)
			if err != nil {
				return nil, err
			}
			body, contentType = buf, ct
		default:
			payload, err := BuildJSONPayload(p, phoneDigits, messageText)
			if err != nil {
				return nil, err
			}
			body, contentType = bytes.NewReader(payload), "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	setAuthHeader(req, p)

	return req, nil
}

// setAuthHeader applies the provider's auth header when both a header name
// and token are configured. When the header name is literally
// "authorization" (any casing) and the token lacks the Bearer prefix, the
// prefix is added; custom header names get the token verbatim.
func setAuthHeader(req *http.Request, p types.MessagingProvider) {
	name := strings.TrimSpace(p.AuthHeaderName)
	token := p.AuthToken.Unmask()
	if name == "" || token == "" {
		return
	}
	if strings.EqualFold(name, "authorization") && !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	req.Header.Set(name, token)
}

// parseBody decodes a gateway response as JSON, falling back to the raw text
// when it isn't valid JSON. An unparseable body is never an error.
func parseBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func failureResult(err error) types.DispatchResult {
	msg := "gateway call failed"
	if err != nil {
		msg = err.Error()
	}
	return types.DispatchResult{
		OK:   false,
		Body: map[string]any{"error": msg},
	}
}
