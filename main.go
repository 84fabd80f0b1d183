package main

import (
	"os"

	"github.com/gantrydev/gantry/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
