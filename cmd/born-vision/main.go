// Package main provides the born-vision CLI.
package main

import (
	"context"

	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

func main() {
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}
