// Package main is the entry point for the CodeGuardian CLI.
package main

import (
	"github.com/greysquirr3l/codeguardian-go/cmd/codeguard/cmd"
)

func main() {
	cmd.Execute()
}
