package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobarin/reelrender/internal/config"
	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var renderOut string

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a request to an MP4 file",
		RunE:  runRender,
	}

	cmd.Flags().StringVar(&renderOut, "out", "out.mp4", "Output file path")
	return cmd
}

type renderSummary struct {
	JobID           uuid.UUID `json:"job_id"`
	Output          string    `json:"output"`
	DurationSeconds float64   `json:"duration_seconds"`
	Bytes           int       `json:"bytes"`
}

func runRender(cmd *cobra.Command, _ []string) error {
	req, err := loadRequest(requestPath)
	if err != nil {
		return err
	}

	cfg, err := config.LoadRender()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	progress := func(stage models.Stage, percent int) {
		if outputJSON {
			return
		}
		fmt.Fprintf(out, "[%3d%%] %s\n", percent, stage)
	}

	jobID := uuid.New()
	renderer := worker.NewRendererFromConfig(cfg)
	result, err := renderer.Render(ctx, jobID, req, progress)
	if err != nil {
		return err
	}

	if err := os.WriteFile(renderOut, result.Video, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", renderOut, err)
	}

	summary := renderSummary{
		JobID:           jobID,
		Output:          renderOut,
		DurationSeconds: result.DurationSeconds,
		Bytes:           len(result.Video),
	}
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	fmt.Fprintf(out, "Wrote %s (%ss, %d bytes)\n", summary.Output, filtergraph.Num(summary.DurationSeconds), summary.Bytes)
	return nil
}
