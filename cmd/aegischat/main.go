package main

import (
	"os"

	"github.com/utracks/AegisChat/cmd/aegischat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
