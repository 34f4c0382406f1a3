package main

import (
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/kvs/internal/config"
	"github.com/calvinalkan/kvs/internal/engine"
	"github.com/calvinalkan/kvs/internal/logengine"
	"github.com/calvinalkan/kvs/internal/pool"
	"github.com/calvinalkan/kvs/internal/server"
	"github.com/calvinalkan/kvs/internal/sledengine"
)

// Run parses args and serves until shutdown fires. It returns the process
// exit code. shutdown can be nil in tests that never need to stop the server.
func Run(errOut io.Writer, args []string, shutdown <-chan struct{}) int {
	flags := flag.NewFlagSet("kvs-server", flag.ContinueOnError)
	flags.SetOutput(&strings.Builder{})

	addr := flags.String("addr", "127.0.0.1:4000", "address to listen on")
	dir := flags.String("dir", ".", "data `directory`")
	engineFlag := flags.String("engine", "", "engine to use: kvs or sled (default: whatever the data directory was opened with, else kvs)")
	workers := flags.Int("workers", 8, "number of worker goroutines")
	queueDepth := flags.Int("queue-depth", 1024, "job queue depth")

	if err := flags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	kind, err := resolveEngineKind(*dir, *engineFlag)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	log, err := zap.NewProduction()
	if err != nil {
		fprintln(errOut, "error: build logger:", err)

		return 1
	}

	defer func() { _ = log.Sync() }()

	eng, err := openEngine(kind, *dir)
	if err != nil {
		log.Error("open engine", zap.Error(err))

		return 1
	}

	defer func() { _ = eng.Close() }()

	p := pool.New(*workers, *queueDepth, log)
	defer p.Close()

	srv := server.New(eng, p, log, shutdown)

	err = srv.Run(*addr)
	if err != nil {
		log.Error("server exited", zap.Error(err))

		return 1
	}

	return 0
}

func resolveEngineKind(dir, flagValue string) (engine.Kind, error) {
	if flagValue != "" {
		switch engine.Kind(flagValue) {
		case engine.KindLog, engine.KindSled:
			return engine.Kind(flagValue), nil
		default:
			return "", fmt.Errorf("unknown --engine %q, want %q or %q", flagValue, engine.KindLog, engine.KindSled)
		}
	}

	kind, ok, err := config.Load(dir)
	if err != nil {
		return "", err
	}

	if ok {
		return kind, nil
	}

	return engine.KindLog, nil
}

func openEngine(kind engine.Kind, dir string) (engine.Engine, error) {
	switch kind {
	case engine.KindSled:
		return sledengine.Open(dir)
	default:
		return logengine.Open(dir)
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
