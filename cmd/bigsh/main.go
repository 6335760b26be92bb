// Command bigsh prints and edits a controller's configuration as the CLI
// commands that would recreate it.
//
// Usage:
//
//	bigsh [--config bigsh.yaml] running-config [path...] [key=value...]
//	bigsh selector <path> [operation] [key=value...]
//	bigsh schema [path]
//	bigsh shell
//	bigsh serve
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
