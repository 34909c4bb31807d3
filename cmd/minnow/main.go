package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
)

// Context represents the global context for commands
type Context struct {
	Config  string
	Verbose bool
	Quiet   bool
	Logger  *zap.Logger
}

var CLI struct {
	Config   string      `help:"Configuration file path" default:"minnow.yaml"`
	Verbose  bool        `help:"Enable verbose output" short:"v"`
	Quiet    bool        `help:"Suppress output" short:"q"`
	Build    BuildCmd    `cmd:"" help:"Extract raw configuration data through the analysis service"`
	Simplify SimplifyCmd `cmd:"" help:"Convert raw data to the condensed verification format"`
	Query    QueryCmd    `cmd:"" help:"Run reachability queries against a condensed document"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run() error {
	fmt.Println("minnow v0.1.0")
	return nil
}

func main() {
	ctx := kong.Parse(&CLI)

	logger := buildLogger(CLI.Verbose, CLI.Quiet)
	defer logger.Sync() //nolint:errcheck

	appCtx := &Context{
		Config:  CLI.Config,
		Verbose: CLI.Verbose,
		Quiet:   CLI.Quiet,
		Logger:  logger,
	}

	err := ctx.Run(appCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildLogger returns a development logger scaled to the output flags:
// debug level when verbose, errors only by default, nothing when quiet.
func buildLogger(verbose, quiet bool) *zap.Logger {
	if quiet {
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}
