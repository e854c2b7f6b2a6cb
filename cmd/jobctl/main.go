// Package main はジョブストアを直接操作する管理用CLIです。
package main

import (
	"fmt"
	"os"

	"github.com/yourusername/quickpdf/cmd/jobctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
