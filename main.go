package main

import (
	"os"

	"github.com/mammothweb/mammoth/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
