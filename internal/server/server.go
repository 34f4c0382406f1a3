// Package server binds a TCP listener and dispatches each accepted
// connection's requests to a pool.Pool, handing the decoded Request to an
// engine.Engine and writing back a protocol.Response.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/calvinalkan/kvs/internal/engine"
	"github.com/calvinalkan/kvs/internal/pool"
	"github.com/calvinalkan/kvs/internal/protocol"
)

// acceptPollInterval bounds how stale the shutdown check can be: Run polls
// the shutdown channel between Accept calls by giving the listener a short
// deadline, since net.Listener has no select-friendly cancellation.
const acceptPollInterval = 200 * time.Millisecond

// Server dispatches connections accepted on one TCP listener to a pool of
// worker goroutines, each operating on a shared engine.Engine handle.
type Server struct {
	eng      engine.Engine
	pool     *pool.Pool
	log      *zap.Logger
	shutdown <-chan struct{}
}

// New returns a Server backed by eng and pool. Run exits once shutdown is
// closed. A nil log runs silently.
func New(eng engine.Engine, p *pool.Pool, log *zap.Logger, shutdown <-chan struct{}) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{eng: eng, pool: p, log: log, shutdown: shutdown}
}

// Run binds addr and serves until shutdown is closed or Accept fails for a
// reason other than the listener's own shutdown-induced close.
func (s *Server) Run(addr string) error {
	lc := net.ListenConfig{}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}

	defer func() { _ = ln.Close() }()

	s.log.Info("server: listening", zap.String("addr", ln.Addr().String()))

	go func() {
		<-s.shutdown
		_ = ln.Close()
	}()

	tcpLn, ok := ln.(*net.TCPListener)

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		if ok {
			_ = tcpLn.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}

			select {
			case <-s.shutdown:
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}

		handle := s.eng.Clone()

		s.pool.Spawn(func() {
			s.serve(conn, handle)
		})
	}
}

func isTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// serve handles every request on one connection until the client closes it
// or sends a malformed message.
func (s *Server) serve(conn net.Conn, eng engine.Engine) {
	defer func() { _ = conn.Close() }()

	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	for {
		req, err := dec.DecodeRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn("server: decode request", zap.Error(err))
			}

			return
		}

		resp, err := dispatch(eng, req)
		if err != nil {
			s.log.Error("server: dispatch", zap.String("op", string(req.Op)), zap.Error(err))

			return
		}

		err = enc.EncodeResponse(resp)
		if err != nil {
			s.log.Warn("server: encode response", zap.Error(err))

			return
		}
	}
}

// dispatch runs req against eng. The returned error is non-nil only for
// failures that must not reach the wire (I/O errors, a corrupt log); the
// caller logs it and closes the connection. A missing key on Remove is not
// such a failure: it is reported to the client as an ordinary response.
func dispatch(eng engine.Engine, req protocol.Request) (protocol.Response, error) {
	switch req.Op {
	case protocol.OpSet:
		err := eng.Set(req.Key, req.Value)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("set %q: %w", req.Key, err)
		}

		return protocol.OkEmpty(), nil

	case protocol.OpGet:
		value, found, err := eng.Get(req.Key)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("get %q: %w", req.Key, err)
		}

		return protocol.OkValue(value, found), nil

	case protocol.OpRemove:
		err := eng.Remove(req.Key)
		if err != nil {
			if errors.Is(err, engine.ErrKeyNotFound) {
				return protocol.Err("Key not found"), nil
			}

			return protocol.Response{}, fmt.Errorf("remove %q: %w", req.Key, err)
		}

		return protocol.OkEmpty(), nil

	default:
		return protocol.Err(fmt.Sprintf("unknown operation %q", req.Op)), nil
	}
}
