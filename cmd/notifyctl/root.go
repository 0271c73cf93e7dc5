package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// globalState is everything the commands take from the process, so tests can swap it.
type globalState struct {
	fs        afero.Fs
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	logger    *logrus.Logger
	flags     globalFlags
}

type globalFlags struct {
	configFilePath string
	logLevel       string
	noColor        bool
}

func newGlobalState() *globalState {
	logger := &logrus.Logger{
		Out:       os.Stderr,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}

	configFilePath, _ := os.LookupEnv("NOTIFYWS_CONFIG")

	return &globalState{
		fs:        afero.NewOsFs(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
		logger:    logger,
		flags: globalFlags{
			configFilePath: configFilePath,
			logLevel:       "info",
		},
	}
}

type rootCommand struct {
	gs  *globalState
	cmd *cobra.Command
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{gs: gs}

	c.cmd = &cobra.Command{
		Use:               "notifyctl",
		Short:             "inspect the realtime notification channel",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.SetOut(gs.stdout)
	c.cmd.SetErr(gs.stderr)
	c.cmd.PersistentFlags().AddFlagSet(c.rootCmdPersistentFlagSet())

	c.cmd.AddCommand(
		getListenCmd(gs),
		getServeMockCmd(gs),
	)

	return c
}

func (c *rootCommand) persistentPreRunE(_ *cobra.Command, _ []string) error {
	level, err := logrus.ParseLevel(c.gs.flags.logLevel)
	if err != nil {
		return errors.Wrap(err, "--log-level")
	}
	c.gs.logger.SetLevel(level)
	c.gs.logger.SetOutput(c.gs.stderr)
	return nil
}

func (c *rootCommand) rootCmdPersistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVarP(&c.gs.flags.configFilePath, "config", "c", c.gs.flags.configFilePath,
		"TOML config file, also read from NOTIFYWS_CONFIG")
	flags.StringVar(&c.gs.flags.logLevel, "log-level", c.gs.flags.logLevel,
		"log level: trace, debug, info, warn or error")
	flags.BoolVar(&c.gs.flags.noColor, "no-color", c.gs.flags.noColor, "disable colored output")
	return flags
}
