// Package main implements the brandwise CLI commands.
// This file contains the visual loop commands: analyze, validate, responsive.
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brandwise/internal/engine"
	"brandwise/internal/types"
)

var (
	flagViewport  string
	flagViewports string
	flagFixMode   string
	flagValidate  bool
	flagVisTimeout time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Render, critique and optionally fix a fragment",
	Long: `Analyze renders the fragment headlessly, runs the vision critique, and
builds an ordered fix plan. With --auto-apply safe|all the plan is executed
through the transform engine and the before/after score delta is reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var validateCmd = &cobra.Command{
	Use:   "validate [original] [improved]",
	Short: "Compare two fragment versions by critique score",
	Args:  cobra.ExactArgs(2),
	RunE:  runValidate,
}

var responsiveCmd = &cobra.Command{
	Use:   "responsive [file]",
	Short: "Critique a fragment across multiple viewports",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResponsive,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagViewport, "viewport", "1280x800", "render viewport WxH")
	analyzeCmd.Flags().StringVar(&flagFixMode, "auto-apply", "off", "fix application: off, safe, all")
	analyzeCmd.Flags().BoolVar(&flagValidate, "validate", true, "re-critique after fixes")
	analyzeCmd.Flags().StringVarP(&flagCodeType, "type", "t", "", "code type (default: from file extension)")
	analyzeCmd.Flags().DurationVar(&flagVisTimeout, "timeout", 2*time.Minute, "request deadline")

	validateCmd.Flags().StringVar(&flagViewport, "viewport", "1280x800", "render viewport WxH")

	responsiveCmd.Flags().StringVar(&flagViewports, "viewports", "375x667,768x1024,1280x800", "comma-separated WxH list")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := zap.NewExample().Sugar()
	defer log.Sync()

	code, path, err := readInput(args)
	if err != nil {
		return err
	}
	vp, err := parseViewport(flagViewport)
	if err != nil {
		return err
	}

	svc := buildService(true)
	defer svc.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), flagVisTimeout)
	defer cancel()

	log.Infow("analyzing fragment", "bytes", len(code), "viewport", flagViewport, "autoApply", flagFixMode)
	resp := svc.orch.AnalyzeAndFix(ctx, &engine.AnalyzeRequest{
		Code:             string(code),
		CodeType:         codeTypeFor(path),
		ProjectPath:      flagProject,
		Viewport:         vp,
		AutoApply:        flagFixMode,
		ValidateAfterFix: flagValidate,
	})
	if resp.VisualAnalysis != nil {
		log.Infow("critique complete",
			"score", resp.VisualAnalysis.OverallScore,
			"violations", len(resp.VisualAnalysis.Violations),
			"delta", resp.ScoreDelta)
	}
	return printJSON(resp)
}

func runValidate(cmd *cobra.Command, args []string) error {
	original, origPath, err := readInput(args[:1])
	if err != nil {
		return err
	}
	improved, _, err := readInput(args[1:])
	if err != nil {
		return err
	}
	vp, err := parseViewport(flagViewport)
	if err != nil {
		return err
	}

	svc := buildService(true)
	defer svc.close()

	resp := svc.orch.ValidateImprovements(cmd.Context(), &engine.ValidateRequest{
		OriginalCode: string(original),
		ImprovedCode: string(improved),
		CodeType:     codeTypeFor(origPath),
		Viewport:     vp,
	})
	return printJSON(resp)
}

func runResponsive(cmd *cobra.Command, args []string) error {
	code, path, err := readInput(args)
	if err != nil {
		return err
	}

	var viewports []types.Viewport
	for _, spec := range strings.Split(flagViewports, ",") {
		vp, err := parseViewport(strings.TrimSpace(spec))
		if err != nil {
			return err
		}
		viewports = append(viewports, vp)
	}

	svc := buildService(true)
	defer svc.close()

	resp := svc.orch.AnalyzeResponsive(cmd.Context(), &engine.ResponsiveRequest{
		Code:      string(code),
		CodeType:  codeTypeFor(path),
		Viewports: viewports,
	})
	return printJSON(resp)
}

func parseViewport(spec string) (types.Viewport, error) {
	parts := strings.SplitN(strings.ToLower(spec), "x", 2)
	if len(parts) != 2 {
		return types.Viewport{}, fmt.Errorf("viewport %q is not WxH", spec)
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return types.Viewport{}, fmt.Errorf("viewport %q is not WxH", spec)
	}
	return types.Viewport{Width: w, Height: h}, nil
}
