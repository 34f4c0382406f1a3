// Command kvs-client issues a single set, get, or rm request to a kvs
// server over TCP.
package main

import "os"

func main() {
	os.Exit(Run(os.Stdout, os.Stderr, os.Args))
}
