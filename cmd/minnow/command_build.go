package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/service"
)

// BuildCmd represents the build command: it uploads a configuration
// directory to the analysis service and writes the raw export document.
type BuildCmd struct {
	ConfigDir string `arg:"" help:"Directory with device configuration files" type:"existingdir"`
	Output    string `short:"o" help:"Output file path (defaults to <configdir>.json)"`
}

// Run executes the build command
func (cmd *BuildCmd) Run(appCtx *Context) error {
	config, err := minnow.LoadConfig(appCtx.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// the client applies the configured timeout to each request; the build
	// as a whole makes several and stays unbounded
	ctx := context.Background()

	client, err := service.NewClient(ctx, config.Service, appCtx.Logger)
	if err != nil {
		return err
	}

	if appCtx.Verbose {
		color.Blue("Uploading %s to %s", cmd.ConfigDir, config.Service.Address)
	}

	snapshot, err := client.UploadSnapshot(ctx, cmd.ConfigDir)
	if err != nil {
		return err
	}

	doc, err := client.FetchDocument(ctx, snapshot)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode raw document: %w", err)
	}

	output := cmd.Output
	if output == "" {
		base := strings.TrimRight(filepath.Clean(cmd.ConfigDir), string(filepath.Separator))
		output = filepath.Join(config.OutputDir, filepath.Base(base)+".json")
	}

	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	if !appCtx.Quiet {
		color.Green("Wrote raw document: %s (%d nodes, %d edges, %d declarations)",
			output, len(doc.Policy), len(doc.Topology), len(doc.Declarations))
	}

	return nil
}
