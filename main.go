package main

import (
	"os"

	"github.com/updraft-sh/updraft/cmd/updraft"
	"github.com/updraft-sh/updraft/cmd/updraft/types"
)

var Version = "undefined"

func main() {
	os.Exit(updraft.Run(types.BuildFlags{Version: Version}))
}
