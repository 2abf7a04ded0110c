package main

import (
	"log"
	"os"

	"github.com/alecthomas/kong"

	"github.com/palmsync/go-hotsync/pkg/cmdutil"
	serialtransport "github.com/palmsync/go-hotsync/pkg/transport/serial"
)

const (
	programName = "hotsyncd"
	programDesc = "HotSync discovery and sync daemon"
)

func main() {
	logger := log.New(os.Stderr, "hotsyncd: ", log.LstdFlags)

	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.Resolvers(cmdutil.ResolveDevice(serialtransport.ListPorts)),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	err := ctx.Run(&context{logger: logger})
	ctx.FatalIfErrorf(err)
}
