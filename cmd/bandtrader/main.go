package main

import (
	"os"

	"github.com/rustyeddy/bandtrader/cmd/bandtrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
