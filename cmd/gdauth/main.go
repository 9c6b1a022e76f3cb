package main

import (
	"os"

	"github.com/halcyon-labs/gdauth/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
