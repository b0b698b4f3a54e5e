// Package main tails the event feed of one identity and prints each event
// as a log line, or as raw JSON with --json.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"swap-guard/internal/domain"
	"swap-guard/internal/notify"
)

func main() {
	feedURL := flag.String("feed-url", envOr("SWAP_GUARD_FEED", "ws://localhost:8080/ws"), "Event feed websocket URL")
	identity := flag.String("identity", "", "Wallet identity to watch")
	rawJSON := flag.Bool("json", false, "Print events as JSON lines")
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lshortfile)

	if *identity == "" {
		logger.Fatal("--identity is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := notify.DialFeed(ctx, *feedURL, *identity, nil, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to feed: %v", err)
	}
	defer client.Close()

	logger.Printf("Watching %s on %s", *identity, *feedURL)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			logger.Println("Shutdown complete")
			return
		case ev, ok := <-client.Events():
			if !ok {
				logger.Println("Feed closed")
				return
			}
			if *rawJSON {
				if err := enc.Encode(ev); err != nil {
					logger.Printf("encode event: %v", err)
				}
				continue
			}
			logger.Println(describe(ev))
		}
	}
}

// describe renders an event as one human readable line.
func describe(ev domain.Event) string {
	switch ev.Type {
	case domain.EventStatus:
		return fmt.Sprintf("status: %s", ev.Status)
	case domain.EventSimulationComplete, domain.EventExecutionComplete:
		if ev.Transaction == nil {
			return string(ev.Type)
		}
		tx := ev.Transaction
		line := fmt.Sprintf("%s: %s %s->%s risk=%d (%s) route=%s",
			ev.Type, tx.ID, tx.InputAsset, tx.OutputAsset, tx.RiskScore, tx.RiskLevel, tx.SelectedRoute)
		if tx.ExecutedRoute != nil {
			line += fmt.Sprintf(" executed=%s savings=%.6f", *tx.ExecutedRoute, tx.ActualSavings)
		}
		return line
	case domain.EventBatchExecuted:
		return fmt.Sprintf("batch %s executed (transaction %s)", ev.BatchID, ev.TransactionID)
	case domain.EventBatchFailed:
		return fmt.Sprintf("batch %s failed (transaction %s): %s", ev.BatchID, ev.TransactionID, ev.Reason)
	}
	return fmt.Sprintf("unknown event %q", ev.Type)
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
