package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/intermediate"
	"github.com/minnowtool/minnow/topology"
)

// SimplifyCmd represents the simplify command: it converts a raw service
// export into the condensed document downstream verifiers consume.
type SimplifyCmd struct {
	Input         string `arg:"" help:"Raw document produced by the build command" type:"existingfile"`
	Output        string `short:"o" help:"Output file path (defaults to <input>.minnow.json)"`
	SimplifyBools *bool  `help:"Simplify boolean expressions (defaults from config)" negatable:""`
}

// Run executes the simplify command
func (cmd *SimplifyCmd) Run(appCtx *Context) error {
	config, err := minnow.LoadConfig(appCtx.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	simplify := config.Simplify.BoolsEnabled()
	if cmd.SimplifyBools != nil {
		simplify = *cmd.SimplifyBools
	}

	data, err := os.ReadFile(cmd.Input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cmd.Input, err)
	}

	doc, err := topology.DecodeDocument(data)
	if err != nil {
		return err
	}

	// Conversion tolerates unsupported policies: they are dropped from the
	// output and reported, so one exotic construct never blocks the rest of
	// the network.
	topo, issues, err := topology.Build(doc, topology.Options{
		SkipUnsupported: true,
		Logger:          appCtx.Logger,
	})
	if err != nil {
		return err
	}

	irDoc, err := intermediate.Generate(topo, simplify)
	if err != nil {
		return err
	}

	encoded, err := irDoc.Marshal()
	if err != nil {
		return err
	}

	output := cmd.Output
	if output == "" {
		base := strings.TrimSuffix(filepath.Base(cmd.Input), filepath.Ext(cmd.Input))
		output = filepath.Join(config.OutputDir, base+".minnow.json")
	}

	if err := os.WriteFile(output, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	appCtx.Logger.Info("condensed document written",
		zap.String("output", output),
		zap.Bool("simplified", simplify),
		zap.Int("skippedPolicies", len(issues)))

	if !appCtx.Quiet {
		for _, issue := range issues {
			color.Yellow("Skipped %s/%s: %v", issue.Node, issue.Policy, issue.Err)
		}

		color.Green("Wrote condensed document: %s (%d nodes, %d edges)",
			output, len(irDoc.Nodes), len(irDoc.Edges))

		if len(issues) > 0 {
			color.Yellow("%d policies skipped; the output is incomplete for query use", len(issues))
		}
	}

	return nil
}
