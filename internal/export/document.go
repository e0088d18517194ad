package export

import (
	"fmt"
	"strings"
	"time"

	"notathome.app/internal/ledger"
	"notathome.app/internal/session"
)

// Document is the shareable plain-text rendering of a session's ledger.
type Document struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// FormatDocument renders the ledger grouped by block, in the order the
// store returns it. Output is deterministic for a given input.
func FormatDocument(sess session.Session, congregationName string, entries []ledger.AddressEntry, exportedAt time.Time) Document {
	name := strings.TrimSpace(congregationName)
	if name == "" {
		name = sess.CongregationID
	}
	title := fmt.Sprintf("Not At Home: %s, map %d", name, sess.MapNumber)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Session code: %s\n", sess.Code)
	fmt.Fprintf(&b, "Exported: %s\n\n", exportedAt.Format("2006-01-02 15:04 MST"))

	if len(entries) == 0 {
		b.WriteString("No addresses recorded.\n")
	}
	block := -1
	for _, e := range entries {
		if e.BlockNumber != block {
			if block != -1 {
				b.WriteString("\n")
			}
			block = e.BlockNumber
			fmt.Fprintf(&b, "Block %d\n", block)
		}
		fmt.Fprintf(&b, "  %s\n", formatEntry(e))
	}

	fmt.Fprintf(&b, "\nTotal addresses: %d\n", len(entries))
	return Document{Title: title, Body: b.String()}
}

func formatEntry(e ledger.AddressEntry) string {
	switch {
	case e.HasAddress() && e.HasCoordinates():
		return fmt.Sprintf("%s (%.5f, %.5f)", e.Address, *e.Latitude, *e.Longitude)
	case e.HasCoordinates():
		return fmt.Sprintf("pin %.5f, %.5f", *e.Latitude, *e.Longitude)
	default:
		return e.Address
	}
}
