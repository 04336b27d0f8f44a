// Package main is the entry point for the gig CLI.
package main

import "github.com/gigmarket/gig/internal/cli"

func main() {
	cli.Execute()
}
