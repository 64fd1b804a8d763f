// Package main is the entry point for the rtconsole CLI.
//
// Usage:
//
//	rtconsole [flags] <command> [subcommand] [args]
//
// Commands:
//
//	chat       - Open a realtime conversation
//	serve      - Run the HTTP gateway (token issuance, context queries)
//	config     - Configuration management (contexts, services)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/acolytehealth/rtconsole/cmd/rtconsole/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
