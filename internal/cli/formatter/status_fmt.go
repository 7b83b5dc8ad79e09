package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/arothstein/chatguard/internal/store"
)

// FormatStatus renders the tenant's current enforcement status. rec is
// nil when no active block record exists.
func FormatStatus(tenantID string, rec *store.BlockRecord, ttl time.Duration) string {
	var b strings.Builder

	b.WriteString(Header("chatguard status") + "\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", Dim("Tenant:"), Bold(tenantID)))

	if rec == nil {
		b.WriteString(fmt.Sprintf("%s %s\n", Dim("State: "), StyleGreen.Render("● MONITORING")))
		b.WriteString(Dim("No active block record.") + "\n")
		return b.String()
	}

	created := rec.CreatedAt()
	expires := created.Add(ttl)
	b.WriteString(fmt.Sprintf("%s %s\n", Dim("State: "), StyleRed.Render("● BLOCKED")))
	b.WriteString(fmt.Sprintf("%s %s\n", Dim("Reason:"), rec.Reason))
	b.WriteString(fmt.Sprintf("%s %s\n", Dim("Since: "), created.Local().Format(time.RFC1123)))
	b.WriteString(fmt.Sprintf("%s %s\n", Dim("Until: "), expires.Local().Format(time.RFC1123)))
	if rec.OriginalMessage != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", Dim("Blocked message:"), Truncate(rec.OriginalMessage, 80)))
	}
	b.WriteString("\n" + Dim("Run \"chatguard clear\" to lift the block before it expires.") + "\n")
	return b.String()
}

// Truncate shortens s to max runes with an ellipsis.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
