package main

import (
	"os"

	"github.com/tkingovr/routegate/cmd/routegate/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
