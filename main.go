// Package main is the entry point for the cyberres resilience evaluator.
package main

import (
	"context"
	"fmt"
	"os"

	"cyberres/cmd"
)

func main() {
	if err := cmd.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
