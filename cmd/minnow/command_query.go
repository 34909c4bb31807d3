package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"os"

	"github.com/fatih/color"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
	"github.com/minnowtool/minnow/intermediate"
	"github.com/minnowtool/minnow/query"
)

// QueryCmd represents the query command: it answers a reachability question
// against a condensed document.
type QueryCmd struct {
	Input  string `arg:"" help:"Condensed document produced by the simplify command" type:"existingfile"`
	Kind   string `help:"Query kind" default:"reachable" enum:"reachable"`
	Source string `help:"Source node name" required:""`
	Dest   string `help:"Destination address" required:""`
	Trace  bool   `help:"Record the per-hop evaluation trace"`
	Cache  bool   `help:"Use the persistent query-result cache"`
}

// Run executes the query command
func (cmd *QueryCmd) Run(appCtx *Context) error {
	config, err := minnow.LoadConfig(appCtx.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dest, err := netip.ParseAddr(cmd.Dest)
	if err != nil {
		return fmt.Errorf("invalid destination address %q: %w", cmd.Dest, err)
	}

	data, err := os.ReadFile(cmd.Input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cmd.Input, err)
	}

	topo, err := intermediate.Load(data)
	if err != nil {
		return err
	}

	engine := query.NewEngine(topo, config.Query.MaxHops, appCtx.Logger)

	if cmd.Cache {
		cachePath := config.Query.CachePath
		if cachePath == "" {
			cachePath = "minnow-cache.db"
		}

		cache, err := query.OpenCache(cachePath)
		if err != nil {
			return err
		}
		defer cache.Close()

		engine.Cache = cache
	}

	q := query.Query{
		Kind:   query.Kind(cmd.Kind),
		Source: cmd.Source,
		Dest:   dest,
		Trace:  cmd.Trace,
	}

	result, err := engine.Run(context.Background(), q)
	if err != nil && result == nil {
		return err
	}

	encoded, encErr := json.MarshalIndent(result, "", "  ")
	if encErr != nil {
		return fmt.Errorf("failed to encode result: %w", encErr)
	}

	fmt.Println(string(encoded))

	if !appCtx.Quiet {
		switch {
		case result.Inconclusive:
			color.Yellow("Inconclusive: hop bound reached before exhausting paths")
		case result.Disposition == ast.Accept:
			color.Green("Reachable: %s -> %s", cmd.Source, cmd.Dest)
		case result.Disposition == ast.Reject:
			color.Red("Unreachable: %s -> %s", cmd.Source, cmd.Dest)
		default:
			color.Yellow("Conditional: accepted when %s", result.Residual)
		}
	}

	return err
}
