package main

import (
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "searchengine: %v\n", err)
		os.Exit(1)
	}
}
