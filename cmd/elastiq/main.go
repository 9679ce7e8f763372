package main

import (
	"os"

	"github.com/cernops/elastiq/cmd/elastiq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
