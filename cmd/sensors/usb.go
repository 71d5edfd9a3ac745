package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/envsensors/adapter"
	"github.com/mklimuk/envsensors/cmd/sensors/console"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "USB HID devices and MCP2221 bridges",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list all HID devices",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")

		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()
		return nil
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "probe every connected MCP2221 for known sensors",
	Action: func(c *cli.Context) error {
		bridges := adapter.Enumerate()
		if len(bridges) == 0 {
			return console.Fail(adapter.ErrDeviceNotFound, "")
		}

		w := tabwriter.NewWriter(os.Stdout, 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "BRIDGE\tSERIAL\tADDRESS\tCHIP\n")

		for i, info := range bridges {
			mcp := adapter.NewMCP2221(
				adapter.WithOpener(adapter.HIDOpener(i)),
				adapter.WithDump(console.IsVerbose(c.Context)),
			)
			found := detect(c.Context, mcp)
			if len(found) == 0 {
				_, _ = fmt.Fprintf(w, "%d\t%s\t-\t-\n", i, info.Serial)
			}
			for _, d := range found {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%#02x\t%s\n", i, info.Serial, d.Address, d.Chip)
			}
		}
		_ = w.Flush()
		return nil
	},
}
