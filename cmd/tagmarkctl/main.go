// Package main provides tagmarkctl, an offline maintenance tool that works
// directly on a Tagmark data directory. Stop the server before using it
// against a badger store; badger allows a single process at a time.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tagmarkctl: %s\n", err)
		os.Exit(1)
	}
}
