package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/config"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "sensors"
	app.EnableBashCompletion = true
	if version == "" {
		version = config.Version
	}
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "environmental sensors cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored output",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"SENSORS_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "bus adapter: generic, mcp2221 or nanopi",
		},
		&cli.StringFlag{
			Name:  "bus",
			Usage: "bus name (generic) or number (nanopi)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		verbose := ctx.Bool("verbose")
		if verbose {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		console.Trace = verbose
		console.SetColor(!ctx.Bool("no-color"))
		ctx.Context = console.SetVerbose(ctx.Context, verbose)
		return nil
	}
	app.Commands = cli.Commands{
		&bmx280Cmd,
		&htu21dCmd,
		&ccs811Cmd,
		&serveCmd,
		&detectCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}
