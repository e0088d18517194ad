// Command smoke-session exercises a running API end to end: mint a dev
// token, create a session, join it by code, record addresses, watch the
// SSE stream pick one up, export, and verify the teardown cascaded.
//
// The target API should run with NAH_SHARE_WEBHOOK_URL pointing at a sink
// that accepts the export (or unset, which logs exports and reports success).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"notathome.app/internal/auth"
	"notathome.app/internal/client"
	"notathome.app/internal/stream"
)

func main() {
	baseURL := os.Getenv("NAH_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	c, err := client.New(baseURL)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := c.Healthz(ctx); err != nil {
		log.Fatalf("api at %s not healthy: %v", baseURL, err)
	}

	const congregation = "smoke-congregation"
	token, err := c.MintToken(ctx, "smoke-overseer", []auth.Binding{
		{CongregationID: congregation, Role: auth.RoleOverseer},
	})
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	sess, err := c.CreateSession(ctx, congregation, 7)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	if len(sess.Code) < 4 {
		log.Fatalf("short join code %q", sess.Code)
	}

	joined, err := c.FindSessionByCode(ctx, sess.Code)
	if err != nil {
		log.Fatalf("join by code %s: %v", sess.Code, err)
	}
	if joined.ID != sess.ID {
		log.Fatalf("join by code resolved %s, want %s", joined.ID, sess.ID)
	}

	// Record out of block order; the list must come back sorted.
	if _, err := c.RecordAddress(ctx, sess.ID, client.AddressInput{BlockNumber: 5, Address: "34 Oak Ave"}); err != nil {
		log.Fatalf("record address: %v", err)
	}
	if _, err := c.RecordAddress(ctx, sess.ID, client.AddressInput{BlockNumber: 3, Address: "12 Main St"}); err != nil {
		log.Fatalf("record address: %v", err)
	}

	entries, err := c.ListAddresses(ctx, sess.ID)
	if err != nil {
		log.Fatalf("list addresses: %v", err)
	}
	if len(entries) != 2 || entries[0].BlockNumber != 3 || entries[1].BlockNumber != 5 {
		log.Fatalf("unexpected ledger order: %+v", entries)
	}

	events := make(chan stream.Event, 1)
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go func() {
		if err := watchStream(streamCtx, baseURL, token, sess.ID, events); err != nil && streamCtx.Err() == nil {
			log.Fatalf("stream: %v", err)
		}
	}()
	time.Sleep(500 * time.Millisecond) // let the subscription establish

	if _, err := c.RecordAddress(ctx, sess.ID, client.AddressInput{BlockNumber: 3, Address: "14 Main St"}); err != nil {
		log.Fatalf("record address: %v", err)
	}
	select {
	case evt := <-events:
		if evt.Type != stream.EventAddressRecorded || evt.Entry == nil || evt.Entry.Address != "14 Main St" {
			log.Fatalf("unexpected stream event: %+v", evt)
		}
	case <-time.After(5 * time.Second):
		log.Fatal("no stream event within 5s")
	}
	stopStream()

	result, err := c.ExportSession(ctx, sess.ID, "Smoke Congregation")
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	if !result.Shared || !result.TornDown {
		log.Fatalf("export incomplete: shared=%v torn_down=%v", result.Shared, result.TornDown)
	}
	if result.EntryCount != 3 {
		log.Fatalf("export reported %d entries, want 3", result.EntryCount)
	}

	if _, err := c.FindSessionByCode(ctx, sess.Code); !isNotFound(err) {
		log.Fatalf("code %s still resolves after teardown: %v", sess.Code, err)
	}
	if _, err := c.ListAddresses(ctx, sess.ID); !isNotFound(err) {
		log.Fatalf("ledger still readable after teardown: %v", err)
	}

	fmt.Printf("session smoke test passed: session=%s code=%s\n", sess.ID, sess.Code)
}

// watchStream tails the session's SSE endpoint and forwards decoded events.
func watchStream(ctx context.Context, baseURL, token, sessionID string, out chan<- stream.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/sessions/"+sessionID+"/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt stream.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func isNotFound(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
