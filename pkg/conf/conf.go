// Package conf is a helper for gwbench configuration for both command line
// interface and environment variables.
// It gives ability to register arguments which will be fetched from
// CLI input OR environment variable.
// By default it registers following options:
// <GWBENCH_LOG> --log <Log level: debug, info, warn, error, fatal, panic> Default: info
package conf

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("gwbench", "Gateway benchmark orchestration engine.")

	logLevelFlag = NewStringFlag(
		"log",
		"Log level for gwbench: debug, info, warn, error, fatal, panic",
		"info",
	)
	isEnvParsed = false
)

// SetAppName sets application name for CLI output.
func SetAppName(name string) {
	app.Name = name
}

// SetHelp sets the help message for the CLI.
func SetHelp(help string) {
	app.Help = help
}

// AppName returns specified app name.
func AppName() string {
	return app.Name
}

// LogLevel returns configured log level from input option or env variable.
// If it cannot parse the configured level, it falls back to the default one.
func LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(logLevelFlag.Value())
	if err == nil {
		return level
	}

	level, err = logrus.ParseLevel(logLevelFlag.defaultValue)
	if err == nil {
		return level
	}

	// Programmer error.
	panic(errors.Wrap(err, "parsing log level failed"))
}

// resetCumulativeFlags drops values accumulated by a previous parse.
func resetCumulativeFlags() {
	for _, flag := range definedFlags {
		if sliceFlag, ok := flag.(*SliceFlag); ok {
			sliceFlag.resetValue()
		}
	}
}

// ParseFlags parses both the command line flags of the process and
// environment variables.
func ParseFlags() error {
	resetCumulativeFlags()
	_, err := app.Parse(os.Args[1:])
	if err == nil {
		isEnvParsed = true
		return nil
	}

	return errors.Wrap(err, "could not parse command line flags")
}

// ParseEnv parses the environment for arguments.
// It can be run multiple times.
func ParseEnv() error {
	resetCumulativeFlags()
	_, err := app.Parse([]string{})
	if err == nil {
		isEnvParsed = true
		return nil
	}

	return errors.Wrap(err, "could not parse environment flags")
}
