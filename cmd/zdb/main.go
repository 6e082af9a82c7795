package main

import (
	"os"

	"github.com/zdbg/zdb/cmd/zdb/cmds"
	"github.com/zdbg/zdb/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.ZdbVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
