package main

import (
	"os"

	"contractanalyzer/cmd/contractctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
