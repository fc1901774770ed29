// Package main is the musetalk command line client.
//
// Usage:
//
//	musetalk [flags] <command> [args]
//
// Commands:
//
//	generate    - Generate a track from a text prompt
//	transcribe  - Transcribe an audio file
//	intent      - Extract a music intent from a phrase
//	compose     - Transcribe, extract and generate in one go
//	token       - Issue a bearer token for the HTTP API
//	version     - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/nikhilbhutani/musetalk/cmd/musetalk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
