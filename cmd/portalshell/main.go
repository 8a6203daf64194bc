// Package main is the entry point of the portalshell binary.
package main

import (
	"context"

	"github.com/liuxd6825/portalshell/cmd/state"
	"github.com/liuxd6825/portalshell/internal/cmd"
)

func main() {
	cmd.ExecuteWithGlobalState(state.NewGlobalState(context.Background()))
}
