package barbatos

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"libdb.so/barbatos/internal/animation"
	"libdb.so/barbatos/internal/remote"
)

func TestNewDaemonRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PWM.Driver = "gpio"

	if _, err := NewDaemon(cfg, slog.Default()); err == nil {
		t.Fatal("NewDaemon accepted an unknown driver")
	}
}

func TestDaemon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.PWM.Driver = NoopDriver

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	d, err := NewDaemon(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}

	listening := make(chan net.Addr, 1)
	d.listening = listening

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var addr net.Addr
	select {
	case addr = <-listening:
	case err := <-done:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never started listening")
	}

	base := "http://" + addr.String()

	// The daemon always boots into startup.
	status := waitStatus(t, base, func(s remote.StatusResponse) bool { return s.Running })
	if status.Mode != animation.Startup.String() {
		t.Errorf("boot mode = %q, want startup", status.Mode)
	}

	resp, err := http.PostForm(base+"/", url.Values{"mode": {"1"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST / returned %s", resp.Status)
	}

	// Static writes once right after the switch.
	status = waitStatus(t, base, func(s remote.StatusResponse) bool {
		return s.Levels["head"] == int(animation.StaticBrightness) && s.Levels["thrusterB"] == 255
	})
	if status.Mode != animation.Static.String() {
		t.Errorf("mode = %q, want static", status.Mode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func getStatus(t *testing.T, base string) remote.StatusResponse {
	t.Helper()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status remote.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	return status
}

func waitStatus(t *testing.T, base string, ok func(remote.StatusResponse) bool) remote.StatusResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		status := getStatus(t, base)
		if ok(status) {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never settled: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
