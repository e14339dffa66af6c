package main

import (
	"os"

	"github.com/stemsi/exstem-proctor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
