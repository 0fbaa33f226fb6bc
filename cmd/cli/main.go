// Package main is the entry point for the propdash CLI binary.
package main

import (
	"os"

	"propdash/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
