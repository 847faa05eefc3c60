package main

import (
	"os"

	"github.com/srlabs/arq-sim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
