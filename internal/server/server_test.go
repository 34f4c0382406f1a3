package server_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/calvinalkan/kvs/internal/client"
	"github.com/calvinalkan/kvs/internal/logengine"
	"github.com/calvinalkan/kvs/internal/pool"
	"github.com/calvinalkan/kvs/internal/server"
)

func startServer(t *testing.T) (addr string, shutdown chan struct{}) {
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

	addr = ln.Addr().String()

	_ = ln.Close()

	p := pool.New(4, 16, nil)
	t.Cleanup(p.Close)

	shutdown = make(chan struct{})

	srv := server.New(eng, p, nil, shutdown)

	errCh := make(chan error, 1)

	go func() { errCh <- srv.Run(addr) }()

	t.Cleanup(func() {
		close(shutdown)

		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("server did not shut down")
		}
	})

	waitForListener(t, addr)

	return addr, shutdown
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

func Test_SetGetRemove_EndToEnd(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)

	c, err := client.New(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Set("k1", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := c.Get("k1")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("get = (%q, %v, %v), want (v1, true, nil)", v, ok, err)
	}

	if err := c.Remove("k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, ok, err = c.Get("k1")
	if err != nil || ok {
		t.Fatalf("get after remove = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	err = c.Remove("k1")
	if err == nil {
		t.Fatalf("remove missing key: want error")
	}
}

func Test_MultipleClients_Concurrent(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)

	const clients = 8

	errCh := make(chan error, clients)

	for i := range clients {
		go func(i int) {
			c, err := client.New(addr)
			if err != nil {
				errCh <- err

				return
			}
			defer func() { _ = c.Close() }()

			key := "client-key"

			if err := c.Set(key, "v"); err != nil {
				errCh <- err

				return
			}

			_, ok, err := c.Get(key)
			if err != nil {
				errCh <- err

				return
			}

			if !ok {
				errCh <- errors.New("expected key to be found")

				return
			}

			errCh <- nil
		}(i)
	}

	for range clients {
		if err := <-errCh; err != nil {
			t.Fatalf("client error: %v", err)
		}
	}
}
