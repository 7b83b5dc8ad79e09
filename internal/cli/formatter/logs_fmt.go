package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/arothstein/chatguard/internal/store"
)

// FormatLogs renders the audit backlog, newest entry last.
func FormatLogs(entries []store.BacklogEntry) string {
	var b strings.Builder

	b.WriteString(Header("audit backlog") + "\n\n")
	if len(entries) == 0 {
		b.WriteString(Dim("No recorded verdicts.") + "\n")
		return b.String()
	}

	for _, e := range entries {
		when := time.UnixMilli(e.Timestamp).Local().Format("2006-01-02 15:04:05")
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			Dim(when), verdictBadge(e.Type), Truncate(e.BotMessage, 70)))
		if e.Type == "block" && e.Reason != "" {
			b.WriteString("  " + StyleYellow.Render("reason: "+e.Reason) + "\n")
		}
	}
	b.WriteString("\n" + Dim(fmt.Sprintf("%d entries", len(entries))) + "\n")
	return b.String()
}

func verdictBadge(entryType string) string {
	switch entryType {
	case "block":
		return StyleRed.Render("BLOCK")
	case "pass":
		return StyleGreen.Render("PASS ")
	default:
		return StyleDim.Render(strings.ToUpper(entryType))
	}
}
