package main

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func Test_Run_ServesUntilShutdown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}

	addr := ln.Addr().String()

	_ = ln.Close()

	shutdown := make(chan struct{})

	var errBuf bytes.Buffer

	args := []string{"kvs-server", "--addr", addr, "--dir", dir, "--engine", "kvs"}

	done := make(chan int, 1)

	go func() { done <- Run(&errBuf, args, shutdown) }()

	waitForListener(t, addr)

	close(shutdown)

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("Run exit code = %d, stderr: %s", code, errBuf.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func Test_Run_UnknownEngineFlag_Fails(t *testing.T) {
	t.Parallel()

	var errBuf bytes.Buffer

	args := []string{"kvs-server", "--engine", "bogus", "--dir", t.TempDir()}

	code := Run(&errBuf, args, make(chan struct{}))
	if code == 0 {
		t.Fatalf("Run exit code = 0, want non-zero")
	}
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()

			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("server never started listening on %s", addr)
}
