package main

import (
	"os"

	"github.com/psantana5/example/cmd/example/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
