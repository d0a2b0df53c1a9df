// Package main is a small diagnostic tool that tails a Relay
// environment: it initializes a client from RELAY_* environment
// variables, prints the flat value view once ready, and again on every
// change until interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	relay "github.com/relayhq/relay-go"
	relayhttp "github.com/relayhq/relay-go/http"
	"github.com/relayhq/relay-go/persist"
)

const initTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("relay-watch failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := relay.FromEnv()
	if err != nil {
		return err
	}

	if dir := os.Getenv("RELAY_CACHE_DIR"); dir != "" {
		store, err := persist.NewFileStore(dir)
		if err != nil {
			return err
		}
		cfg.Store = store
	}

	client, err := relayhttp.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	unsubscribe := client.Subscribe(func(relay.Snapshot) {
		printFlat(client)
	})
	defer unsubscribe()

	initCtx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.WaitForInitialized(initCtx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	printFlat(client)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return nil
}

func printFlat(client *relay.Client) {
	out, err := json.MarshalIndent(client.FlatValues(), "", "  ")
	if err != nil {
		return
	}
	fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339), out)
}
