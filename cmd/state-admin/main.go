package main

import (
	"os"

	"dai-trader/cmd/state-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
