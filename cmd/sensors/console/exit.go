package console

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/envsensors"
)

// Process exit codes.
const (
	ExitFailure = 1
	// ExitUsage reports bad arguments or an invalid configuration file.
	ExitUsage = 2
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Usage rejects command line arguments.
func Usage(msg string, args ...interface{}) cli.ExitCoder {
	return Exit(ExitUsage, msg, args...)
}

// Fail reports err after an optional context message. Configuration errors
// exit with ExitUsage, everything else with ExitFailure.
func Fail(err error, msg string, args ...interface{}) cli.ExitCoder {
	code := ExitFailure
	if errors.Is(err, envsensors.ErrConfiguration) {
		code = ExitUsage
	}
	if msg == "" {
		return Exit(code, "%s", Red(err))
	}
	return Exit(code, "%s: %s", fmt.Sprintf(msg, args...), Red(err))
}
