// Package main implements the brandwise CLI commands.
// This file contains context discovery and pattern feedback commands.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"brandwise/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Resolve and print the project's brand context",
	RunE:  runDiscover,
}

var (
	flagFeedbackRule   string
	flagFeedbackToken  string
	flagFeedbackAccept bool
	flagFeedbackReject bool
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Pattern store feedback",
}

var patternsFeedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record accept/reject feedback for a suggested pattern",
	RunE:  runPatternsFeedback,
}

func init() {
	patternsFeedbackCmd.Flags().StringVar(&flagFeedbackRule, "rule", "", "rule id (required)")
	patternsFeedbackCmd.Flags().StringVar(&flagFeedbackToken, "token", "", "token reference (required)")
	patternsFeedbackCmd.Flags().StringVar(&flagComponent, "component", "", "component type")
	patternsFeedbackCmd.Flags().BoolVar(&flagFeedbackAccept, "accept", false, "record acceptance")
	patternsFeedbackCmd.Flags().BoolVar(&flagFeedbackReject, "reject", false, "record rejection")
	patternsFeedbackCmd.MarkFlagRequired("rule")
	patternsFeedbackCmd.MarkFlagRequired("token")

	patternsCmd.AddCommand(patternsFeedbackCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	resolver := discovery.NewResolver(newFilePackSource(flagProject), os.Getenv,
		resolveUnder(cfg.Discovery.MappingPath))

	pc, err := resolver.Resolve(cmd.Context(), flagProject)
	if err != nil {
		return err
	}
	return printJSON(pc)
}

func runPatternsFeedback(cmd *cobra.Command, args []string) error {
	svc := buildService(false)
	defer svc.close()

	accepted := flagFeedbackAccept && !flagFeedbackReject
	return svc.orch.TrackUsage(cmd.Context(), flagProject, flagComponent,
		flagFeedbackRule, flagFeedbackToken, accepted)
}
