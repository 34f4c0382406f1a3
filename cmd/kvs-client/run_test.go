package main

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/calvinalkan/kvs/internal/logengine"
	"github.com/calvinalkan/kvs/internal/pool"
	"github.com/calvinalkan/kvs/internal/server"
)

func startTestServer(t *testing.T) string {
	t.Helper()

	eng, err := logengine.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}

	t.Cleanup(func() { _ = eng.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}

	addr := ln.Addr().String()

	_ = ln.Close()

	p := pool.New(2, 8, nil)
	t.Cleanup(p.Close)

	shutdown := make(chan struct{})
	t.Cleanup(func() { close(shutdown) })

	srv := server.New(eng, p, nil, shutdown)

	go func() { _ = srv.Run(addr) }()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()

			return addr
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("server never started listening on %s", addr)

	return ""
}

func Test_SetGetRm(t *testing.T) {
	t.Parallel()

	addr := startTestServer(t)

	var out, errOut bytes.Buffer

	code := Run(&out, &errOut, []string{"kvs-client", "--addr", addr, "set", "k1", "v1"})
	if code != 0 {
		t.Fatalf("set exit code = %d, stderr: %s", code, errOut.String())
	}

	out.Reset()

	code = Run(&out, &errOut, []string{"kvs-client", "--addr", addr, "get", "k1"})
	if code != 0 || out.String() != "v1\n" {
		t.Fatalf("get = (code %d, stdout %q), want (0, \"v1\\n\")", code, out.String())
	}

	out.Reset()

	code = Run(&out, &errOut, []string{"kvs-client", "--addr", addr, "rm", "k1"})
	if code != 0 {
		t.Fatalf("rm exit code = %d, stderr: %s", code, errOut.String())
	}

	out.Reset()

	code = Run(&out, &errOut, []string{"kvs-client", "--addr", addr, "get", "k1"})
	if code != 0 || out.String() != "Key not found\n" {
		t.Fatalf("get after rm = (code %d, stdout %q), want (0, \"Key not found\\n\")", code, out.String())
	}

	errOut.Reset()

	code = Run(&out, &errOut, []string{"kvs-client", "--addr", addr, "rm", "k1"})
	if code == 0 || errOut.String() == "" {
		t.Fatalf("rm missing key = (code %d, stderr %q), want (non-zero, non-empty)", code, errOut.String())
	}
}
