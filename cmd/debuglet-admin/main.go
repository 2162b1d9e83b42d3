// ABOUTME: Entry point for the debuglet admin CLI
// ABOUTME: Manages debuggees and breakpoints on a running controller

package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd(dialController).Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
