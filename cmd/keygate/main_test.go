package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/heysubinoy/keygate/pkg/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func waitForHealth(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s never became healthy", url)
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	cfg := &config.Config{
		ListenAddr:    freeAddr(t),
		DBURL:         "mem://",
		WriteToken:    "secret123",
		TableName:     config.DefaultTableName,
		CacheSize:     16,
		MaxValueBytes: config.DefaultMaxValueBytes,
		LogLevel:      "error",
	}
	base := "http://" + cfg.ListenAddr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	waitForHealth(t, base+"/")

	req, _ := http.NewRequest("POST", base+"/foo", strings.NewReader("bar"))
	req.Header.Set("Authorization", "secret123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /foo status = %d, want 201", resp.StatusCode)
	}

	resp, err = http.Get(base + "/foo")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "bar" {
		t.Errorf("GET /foo = %q, want %q", body, "bar")
	}

	resp, err = http.Get(base + "/_/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /_/metrics status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v, want nil", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_BadStore(t *testing.T) {
	cfg := &config.Config{ListenAddr: freeAddr(t), DBURL: "nope://", WriteToken: "x", LogLevel: "error"}
	if err := run(context.Background(), cfg); err == nil {
		t.Fatal("run with unsupported store expected error, got nil")
	}
}
