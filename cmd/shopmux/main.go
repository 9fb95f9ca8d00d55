// Package main is the entry point for the shopmux CLI.
package main

import (
	"os"

	"github.com/shopmux/shopmux/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
