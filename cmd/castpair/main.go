package main

import (
	"os"

	"castpair/cmd/castpair/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
