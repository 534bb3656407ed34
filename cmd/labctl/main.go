package main

import (
	"os"

	"github.com/acqlab/instrumentd/cmd/labctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
