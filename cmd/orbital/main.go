package main

import (
	"fmt"
	"os"

	"github.com/orbital-labs/orbital/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
