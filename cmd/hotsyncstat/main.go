// Command hotsyncstat reports the HotSync-capable USB devices currently
// attached, in the same table/json/openmetrics output shapes the
// teacher's cmd/tcgdiskstat offers for SED drives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/palmsync/go-hotsync/pkg/transport/usb"
)

var (
	outputFmt = flag.String("output", "table", "Output format; one of [table, json, openmetrics]")
	noHeader  = flag.Bool("no-header", false, "Suppress the header in table format output")
	busRoot   = flag.String("bus-root", "", "Root of the usbfs device tree (default /dev/bus/usb)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		fmt.Println()
		flag.PrintDefaults()
	}
	flag.Parse()

	candidates, err := usb.Discover(*busRoot)
	if err != nil {
		log.Fatalf("usb.Discover: %v", err)
	}

	switch *outputFmt {
	case "table":
		outputTable(candidates)
	case "json":
		outputJSON(candidates)
	case "openmetrics":
		outputMetrics(candidates)
	default:
		log.Fatalf("unknown -output %q", *outputFmt)
	}
}

func outputTable(candidates []usb.Candidate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !*noHeader {
		fmt.Fprintln(w, "PATH\tVID\tPID\tNAME\tSTACK\tKNOWN")
	}
	for _, c := range candidates {
		known := "no"
		stack := "-"
		name := "-"
		if c.Known {
			known = "yes"
			name = c.Info.Name
			if c.Info.Stack == usb.StackNetSync {
				stack = "netsync"
			} else {
				stack = "padp"
			}
		}
		fmt.Fprintf(w, "%s\t%#04x\t%#04x\t%s\t%s\t%s\n", c.Path, c.VendorID, c.ProductID, name, stack, known)
	}
	w.Flush()
}

func outputJSON(candidates []usb.Candidate) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(candidates); err != nil {
		log.Fatalf("encode json: %v", err)
	}
}
