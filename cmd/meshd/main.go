package main

import (
	"os"

	"github.com/meshworks/meshd/cmd"
)

func main() {
	if err := cmd.CmdMeshd.Execute(); err != nil {
		os.Exit(1)
	}
}
