// Command webpshrink is the CLI entrypoint: it re-encodes the images in one
// or more folders to WebP so that each file fits a target size.
package main

import (
	"os"

	"github.com/backmassage/webpshrink/internal/cli"
)

// version and commit are injected at build time via -ldflags
// (-X main.version=... -X main.commit=...).
var (
	version = "1.0.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(cli.Execute(version, commit))
}
