// Package main implements the brandwise CLI commands.
// This file contains the deterministic enhancement command.
package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brandwise/internal/engine"
	"brandwise/internal/types"
)

var (
	flagCodeType  string
	flagBrandPack string
	flagBrandVer  string
	flagCached    bool
	flagAutoApply string
	flagMaxEdits  int
	flagOptimize  int
	flagComponent string
	flagTimeout   time.Duration
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [file]",
	Short: "Rewrite a fragment's raw values as brand token references",
	Long: `Enhance parses a CSS, HTML, JSX/TSX or CSS-in-JS fragment, resolves the
project's brand pack, and rewrites literal values into token references
under the safe-auto-apply guardrails. The rewritten fragment and its change
log are printed as JSON; source files are never modified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().StringVarP(&flagCodeType, "type", "t", "", "code type: css, html, jsx, tsx, js (default: from file extension)")
	enhanceCmd.Flags().StringVar(&flagBrandPack, "brand-pack", "", "brand pack id (default: discovery)")
	enhanceCmd.Flags().StringVar(&flagBrandVer, "brand-version", "", "brand pack version")
	enhanceCmd.Flags().BoolVar(&flagCached, "cached", true, "consult the signature cache")
	enhanceCmd.Flags().StringVar(&flagAutoApply, "auto-apply", "safe", "auto-apply mode: safe, off, all")
	enhanceCmd.Flags().IntVar(&flagMaxEdits, "max-changes", 0, "auto-apply cap (0 = policy default)")
	enhanceCmd.Flags().IntVar(&flagOptimize, "optimize", 0, "optimization level: 0, 1, 2")
	enhanceCmd.Flags().StringVar(&flagComponent, "component", "", "component type for pattern learning")
	enhanceCmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "request deadline")
}

func runEnhance(cmd *cobra.Command, args []string) error {
	code, path, err := readInput(args)
	if err != nil {
		return err
	}

	svc := buildService(false)
	defer svc.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	req := &engine.EnhanceRequest{
		Code:          string(code),
		CodeType:      codeTypeFor(path),
		BrandPackID:   flagBrandPack,
		BrandVersion:  flagBrandVer,
		ProjectPath:   flagProject,
		ComponentType: flagComponent,
		FilePath:      path,
		AutoApply:     flagAutoApply,
		MaxChanges:    flagMaxEdits,
		Optimize:      flagOptimize,
	}

	var resp *engine.EnhanceResponse
	if flagCached {
		resp = svc.orch.EnhanceCached(ctx, req)
	} else {
		resp = svc.orch.Enhance(ctx, req)
	}
	return printJSON(resp)
}

// codeTypeFor picks the code type from the flag or the file extension.
func codeTypeFor(path string) types.CodeType {
	if flagCodeType != "" {
		return types.CodeType(strings.ToLower(flagCodeType))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css":
		return types.CodeCSS
	case ".html", ".htm":
		return types.CodeHTML
	case ".jsx":
		return types.CodeJSX
	case ".tsx":
		return types.CodeTSX
	case ".js", ".ts":
		return types.CodeJS
	}
	return types.CodeCSS
}
