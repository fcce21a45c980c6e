// Package main implements the brandwise CLI - the AI-assisted design
// enhancement service.
//
// This file is the entry point and command registration hub. Command
// implementations are split across cmd_*.go files:
//
//   - cmd_enhance.go  - enhanceCmd: deterministic enhancement (cached or not)
//   - cmd_analyze.go  - analyzeCmd, validateCmd, responsiveCmd: the visual loop
//   - cmd_cache.go    - cacheCmd: cache stats and maintenance
//   - cmd_discover.go - discoverCmd, patternsCmd: context resolution, feedback
//   - service.go      - buildService(): component construction and wiring
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"brandwise/internal/config"
	"brandwise/internal/logging"
)

var (
	flagConfig  string
	flagProject string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "brandwise",
	Short: "AI-assisted design enhancement: tokenize fragments, critique renders, learn patterns",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagProject == "" {
			flagProject, err = config.FindWorkspaceRoot()
			if err != nil {
				flagProject = "."
			}
		}
		if err := logging.Initialize(flagProject); err != nil {
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", ".agentic/config.yaml", "service config file")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project root (default: workspace root)")

	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(responsiveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(patternsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
