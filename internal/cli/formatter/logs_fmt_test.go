package formatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arothstein/chatguard/internal/store"
)

func TestFormatLogs_Empty(t *testing.T) {
	out := FormatLogs(nil)
	assert.Contains(t, out, "AUDIT BACKLOG")
	assert.Contains(t, out, "No recorded verdicts")
}

func TestFormatLogs_Entries(t *testing.T) {
	now := time.Now().UnixMilli()
	entries := []store.BacklogEntry{
		{ID: "a", Type: "pass", BotMessage: "Happy to help with scheduling.", Timestamp: now},
		{ID: "b", Type: "block", BotMessage: "We guarantee you'll get $8,000",
			Reason: "Risky keyword detected", Timestamp: now},
	}

	out := FormatLogs(entries)

	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "BLOCK")
	assert.Contains(t, out, "Happy to help with scheduling.")
	assert.Contains(t, out, "reason: Risky keyword detected")
	assert.Contains(t, out, "2 entries")
}
