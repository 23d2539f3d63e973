// Package main is the entry point for the easyrelease CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/easyrelease/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
