// Package main is the entry point for the cv caregiver visit CLI.
package main

import (
	"fmt"
	"os"

	"github.com/evcraddock/carevisit/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}
