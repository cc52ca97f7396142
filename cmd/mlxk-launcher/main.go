package main

import (
	"os"

	"github.com/mzau/mlxk-launcher/cmd/mlxk-launcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
