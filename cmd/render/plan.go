package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/bobarin/reelrender/internal/config"
	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/services"
	"github.com/bobarin/reelrender/internal/worker"
	"github.com/spf13/cobra"
)

var planShowFilters bool

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the clips, transitions and timings a request would render with",
		RunE:  runPlan,
	}

	cmd.Flags().BoolVar(&planShowFilters, "filters", false, "Print each clip's filter graph")
	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
	req, err := loadRequest(requestPath)
	if err != nil {
		return err
	}

	cfg, err := config.LoadRender()
	if err != nil {
		return err
	}

	// Planning never touches ffmpeg or the network.
	renderer := worker.NewRenderer(worker.RendererConfigFrom(cfg), nil, nil, nil, services.NewFontResolver(cfg.FontDir))
	plan, err := renderer.Plan(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	s := plan.Settings
	fmt.Fprintf(out, "Frame:      %dx%d @ %d fps (%s)\n", s.Width, s.Height, s.FPS, s.Canvas)
	fmt.Fprintf(out, "Concat:     %s\n", plan.ConcatMode)
	if plan.ConcatMode == filtergraph.ConcatTransition {
		fmt.Fprintf(out, "Transition: %s, %ss\n", plan.Transition, filtergraph.Num(s.TransitionDuration))
	}
	fmt.Fprintf(out, "Duration:   %ss", filtergraph.Num(plan.SegmentsDuration))
	if plan.HoldDuration > 0 {
		fmt.Fprintf(out, " (last frame held %ss)", filtergraph.Num(plan.HoldDuration))
	}
	fmt.Fprint(out, "\n\n")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tDURATION\tFRAMES\tOFFSET\tTEXT")
	for _, seg := range plan.Segments {
		offset := "-"
		if seg.Index > 0 && seg.Index-1 < len(plan.Offsets) {
			offset = filtergraph.Num(plan.Offsets[seg.Index-1])
		}
		text := "-"
		if len(seg.TextLines) > 0 {
			text = fmt.Sprintf("%s (%s-%s)", strings.Join(seg.TextLines, " / "), filtergraph.Num(seg.TextStart), filtergraph.Num(seg.TextEnd))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", seg.Index, seg.Type, filtergraph.Num(seg.Duration), seg.Frames, offset, text)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if planShowFilters {
		for _, seg := range plan.Segments {
			fmt.Fprintf(out, "\nclip %d:\n%s\n", seg.Index, seg.Filter)
		}
	}
	return nil
}
