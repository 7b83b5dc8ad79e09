// Package audit records every verdict: one best-effort remote delivery
// plus an always-written local backlog. Recording never blocks or delays
// an enforcement decision.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/store"
)

// Verdict types as they appear in audit records.
const (
	TypePass  = "pass"
	TypeBlock = "block"
)

// Entry is one verdict to record.
type Entry struct {
	Type        string
	BotMessage  string
	UserMessage string
	Reason      string
}

// logRequest is the JSON body sent to POST {base}/api/log.
type logRequest struct {
	TenantID    string `json:"tenantId"`
	Type        string `json:"type"`
	BotMessage  string `json:"botMessage"`
	UserMessage string `json:"userMessage"`
	Reason      string `json:"reason"`
}

// Sink delivers entries remotely (one attempt, no retry) and appends them
// to the bounded local backlog regardless of remote outcome.
type Sink struct {
	endpoint string
	tenantID string
	http     *http.Client
	backlog  *store.Backlog
	logger   *zap.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewSink creates a Sink posting to endpoint for the given tenant.
func NewSink(endpoint, tenantID string, backlog *store.Backlog, logger *zap.Logger) *Sink {
	return &Sink{
		endpoint: endpoint,
		tenantID: tenantID,
		http:     &http.Client{Timeout: 5 * time.Second},
		backlog:  backlog,
		logger:   logger,
		now:      time.Now,
	}
}

// Record persists the entry locally and dispatches the remote attempt in
// the background. It never returns an error; audit failure must stay
// invisible to enforcement.
func (s *Sink) Record(ctx context.Context, entry Entry) {
	local := store.BacklogEntry{
		ID:          uuid.NewString(),
		Type:        entry.Type,
		BotMessage:  entry.BotMessage,
		UserMessage: entry.UserMessage,
		Reason:      entry.Reason,
		Timestamp:   s.now().UnixMilli(),
	}
	if err := s.backlog.Append(ctx, local); err != nil {
		s.logger.Warn("audit backlog append failed", zap.Error(err))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(entry)
	}()
}

func (s *Sink) deliver(entry Entry) {
	payload, err := json.Marshal(logRequest{
		TenantID:    s.tenantID,
		Type:        entry.Type,
		BotMessage:  entry.BotMessage,
		UserMessage: entry.UserMessage,
		Reason:      entry.Reason,
	})
	if err != nil {
		return
	}
	resp, err := s.http.Post(s.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.logger.Debug("audit delivery failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

// Wait blocks until all dispatched remote deliveries have finished. Used
// on shutdown and in tests.
func (s *Sink) Wait() {
	s.wg.Wait()
}
