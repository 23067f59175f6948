package main

import (
	"os"

	"github.com/rustyeddy/sessiontrader/cmd/sessiontrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
