// Package main is the entry point for sahara-replay.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/sahara/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
