// Command kvs-server serves a persistent key/value store over TCP.
package main

import (
	"os"
	"os/signal"
	"syscall"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	shutdown := make(chan struct{})

	go func() {
		<-sigCh
		close(shutdown)
	}()

	os.Exit(Run(os.Stderr, os.Args, shutdown))
}
