package main

import (
	"os"

	"academy-of-heroes/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
