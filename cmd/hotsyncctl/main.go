package main

import (
	"log"
	"os"

	"github.com/alecthomas/kong"

	"github.com/palmsync/go-hotsync/pkg/cmdutil"
	"github.com/palmsync/go-hotsync/pkg/transport/serial"
)

const (
	programName = "hotsyncctl"
	programDesc = "HotSync session inspection and replay tool"
)

func main() {
	logger := log.New(os.Stderr, "hotsyncctl: ", log.LstdFlags)

	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.NamedMapper("accessiblefile", cmdutil.AccessibleFileMapper()),
		kong.Resolvers(cmdutil.ResolveDevice(serial.ListPorts)),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	err := ctx.Run(&context{logger: logger})
	ctx.FatalIfErrorf(err)
}
