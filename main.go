package main

import (
	"os"

	"github.com/AlfredBerg/scrapecrawl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
