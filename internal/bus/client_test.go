package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/quoteplay/internal/config"
	"github.com/loqalabs/quoteplay/internal/natsserver"
	"github.com/loqalabs/quoteplay/internal/protocol"
)

func TestPublishRoutesByOutcome(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default().Bus
	cfg.Enabled = true
	cfg.Embedded = true
	cfg.Port = -1

	srv, err := natsserver.Start(cfg, log)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	defer srv.Shutdown()

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}

	spoken, err := client.Conn().SubscribeSync("quoteplay.spoken")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	failed, err := client.Conn().SubscribeSync("quoteplay.failed")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := client.Publish(context.Background(), protocol.QuoteEvent{InvocationID: "a", Text: "hi", Played: true}); err != nil {
		t.Fatalf("publish spoken: %v", err)
	}
	if err := client.Publish(context.Background(), protocol.QuoteEvent{InvocationID: "b", Error: "boom"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg, err := spoken.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("spoken message: %v", err)
	}
	var evt protocol.QuoteEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.InvocationID != "a" || !evt.Played {
		t.Fatalf("unexpected spoken event %+v", evt)
	}

	msg, err = failed.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("failed message: %v", err)
	}
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.InvocationID != "b" || evt.Error != "boom" {
		t.Fatalf("unexpected failed event %+v", evt)
	}
}

func TestConnectRequiresServers(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Connect(context.Background(), config.BusConfig{}, log); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestStartSkipsWhenNotEmbedded(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := natsserver.Start(config.BusConfig{}, log)
	if err != nil || srv != nil {
		t.Fatalf("expected nil server, got %v %v", srv, err)
	}
}
