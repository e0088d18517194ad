package export

import (
	"testing"
	"time"

	"notathome.app/internal/ledger"
	"notathome.app/internal/session"
)

func f64(v float64) *float64 { return &v }

func TestFormatDocument(t *testing.T) {
	sess := session.Session{
		ID:             "s1",
		Code:           "4217",
		CongregationID: "cong-1",
		MapNumber:      7,
	}
	entries := []ledger.AddressEntry{
		{BlockNumber: 3, Address: "12 Main St"},
		{BlockNumber: 3, Latitude: f64(40.7125), Longitude: f64(-74.006)},
		{BlockNumber: 5, Address: "9 Oak Ave", Latitude: f64(40.7), Longitude: f64(-74.1)},
	}
	exportedAt := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	doc := FormatDocument(sess, "Ridgewood East", entries, exportedAt)

	if doc.Title != "Not At Home: Ridgewood East, map 7" {
		t.Fatalf("title=%q", doc.Title)
	}
	want := "Not At Home: Ridgewood East, map 7\n" +
		"Session code: 4217\n" +
		"Exported: 2026-03-14 18:30 UTC\n" +
		"\n" +
		"Block 3\n" +
		"  12 Main St\n" +
		"  pin 40.71250, -74.00600\n" +
		"\n" +
		"Block 5\n" +
		"  9 Oak Ave (40.70000, -74.10000)\n" +
		"\n" +
		"Total addresses: 3\n"
	if doc.Body != want {
		t.Fatalf("body mismatch:\n--- got ---\n%s\n--- want ---\n%s", doc.Body, want)
	}
}

func TestFormatDocumentEmptyLedger(t *testing.T) {
	sess := session.Session{Code: "0042", CongregationID: "cong-9", MapNumber: 2}
	exportedAt := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	doc := FormatDocument(sess, "", nil, exportedAt)

	if doc.Title != "Not At Home: cong-9, map 2" {
		t.Fatalf("expected congregation id fallback, got %q", doc.Title)
	}
	want := "Not At Home: cong-9, map 2\n" +
		"Session code: 0042\n" +
		"Exported: 2026-03-14 18:30 UTC\n" +
		"\n" +
		"No addresses recorded.\n" +
		"\n" +
		"Total addresses: 0\n"
	if doc.Body != want {
		t.Fatalf("body mismatch:\n--- got ---\n%s\n--- want ---\n%s", doc.Body, want)
	}
}

func TestFormatDocumentIsDeterministic(t *testing.T) {
	sess := session.Session{Code: "4217", CongregationID: "cong-1", MapNumber: 7}
	entries := []ledger.AddressEntry{
		{BlockNumber: 1, Address: "1 Elm St"},
		{BlockNumber: 2, Address: "2 Elm St"},
	}
	at := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	first := FormatDocument(sess, "X", entries, at)
	second := FormatDocument(sess, "X", entries, at)
	if first != second {
		t.Fatal("same input must render the same document")
	}
}
