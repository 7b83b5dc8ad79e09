package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// evaluateRequest is the JSON body sent to POST {base}/api/evaluate.
type evaluateRequest struct {
	TenantID    string `json:"tenantId"`
	BotMessage  string `json:"botMessage"`
	UserMessage string `json:"userMessage"`
}

// Client asks the remote evaluation service for a verdict, degrading to
// the local heuristic when the service cannot be reached at all.
//
// The bias is asymmetric on purpose: a service that answers but returns a
// degenerate payload (non-boolean safety field) yields a default-safe
// verdict, so a half-broken backend does not terminate legitimate
// conversations. A service that cannot answer (timeout, transport error,
// non-2xx, undecodable body) hands the decision to the stricter local
// heuristic instead.
type Client struct {
	endpoint string
	tenantID string
	timeout  time.Duration
	http     *http.Client
	fallback Evaluator
	logger   *zap.Logger
}

// NewClient creates a Client posting to endpoint for the given tenant.
// A zero timeout uses 5 seconds.
func NewClient(endpoint, tenantID string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		tenantID: tenantID,
		timeout:  timeout,
		http:     &http.Client{},
		fallback: NewHeuristic(),
		logger:   logger,
	}
}

// Evaluate implements Evaluator. It never returns an error; every failure
// path resolves to a deterministic, auditable verdict.
func (c *Client) Evaluate(ctx context.Context, botText, userText string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(evaluateRequest{
		TenantID:    c.tenantID,
		BotMessage:  botText,
		UserMessage: userText,
	})
	if err != nil {
		return c.fallback.Evaluate(ctx, botText, userText)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return c.fallback.Evaluate(ctx, botText, userText)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("evaluator unreachable, using fallback", zap.Error(err))
		return c.fallback.Evaluate(ctx, botText, userText)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("evaluator returned unusable response, using fallback",
			zap.Int("status", resp.StatusCode), zap.Error(err))
		return c.fallback.Evaluate(ctx, botText, userText)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Warn("evaluator response undecodable, using fallback", zap.Error(err))
		return c.fallback.Evaluate(ctx, botText, userText)
	}

	safe, ok := result["safe"].(bool)
	if !ok {
		// Reachable but degenerate: default to safe rather than block.
		c.logger.Warn("evaluator response missing boolean safe field")
		return Verdict{Safe: true, Reason: ReasonInvalidResponse}
	}

	reason, ok := result["reason"].(string)
	if !ok {
		reason = ReasonNoReason
	}
	return Verdict{Safe: safe, Reason: reason}
}
