package main

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/heysubinoy/keygate/internal/api"
	"github.com/heysubinoy/keygate/internal/store"
	"google.golang.org/grpc"
)

func startServer(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	gs := grpc.NewServer()
	api.RegisterGRPC(gs, api.NewServer(store.NewMemStore(), "secret123", api.Options{}))
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)
	return lis.Addr().String()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_SetGet(t *testing.T) {
	addr := startServer(t)

	if _, err := runCLI(t, "--addr", addr, "--token", "secret123", "set", "foo", "bar"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	out, err := runCLI(t, "--addr", addr, "get", "foo")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if strings.TrimSpace(out) != "bar" {
		t.Errorf("get foo = %q, want %q", out, "bar")
	}
}

func TestCLI_Errors(t *testing.T) {
	addr := startServer(t)

	if _, err := runCLI(t, "--addr", addr, "get", "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("get missing error = %v, want not found", err)
	}
	if _, err := runCLI(t, "--addr", addr, "--token", "wrong", "set", "foo", "bar"); err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("set with wrong token error = %v, want rejected", err)
	}
	if _, err := runCLI(t, "--addr", addr, "get"); err == nil {
		t.Error("get without key expected error, got nil")
	}
}

func TestCLI_Health(t *testing.T) {
	addr := startServer(t)

	out, err := runCLI(t, "--addr", addr, "health")
	if err != nil {
		t.Fatalf("health error: %v", err)
	}
	if strings.TrimSpace(out) != "SERVING" {
		t.Errorf("health = %q, want SERVING", out)
	}
}
