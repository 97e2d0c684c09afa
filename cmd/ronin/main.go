package main

import (
	"fmt"
	"os"

	"ronin/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ronin:", err)
		os.Exit(1)
	}
}
