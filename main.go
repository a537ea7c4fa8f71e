package main

import (
	"github.com/alecthomas/kong"
	internalCli "github.com/promptdeck/bastion/internal/cli"
)

// version is set by ldflags on release builds.
var version = "dev"

func main() {
	cli := &internalCli.CLI{}
	ctx := kong.Parse(cli, kong.Vars{
		"version": version,
	})

	err := ctx.Run(cli, version)
	ctx.FatalIfErrorf(err)
}
