package main

import (
	"os"

	"github.com/pyhostd/pyhostd/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
