// Package main is the entry point for the personapulse daemon.
package main

import (
	"os"

	"github.com/personapulse/personapulse/cmd/personapulse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
