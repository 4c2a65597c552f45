// Package main provides the gateway binary.
//
// Usage:
//
//	gateway serve                  run the chat gateway
//	gateway chat [flags] <message> stream one reply over the websocket API
//
// Configuration is read from the environment and from an optional .env file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
