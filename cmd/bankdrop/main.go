package main

import (
	"os"

	"github.com/minseodaa/bankdrop/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
