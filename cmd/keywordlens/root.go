package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/config"
	"github.com/keywordlens/keywordlens/internal/home"
	"github.com/keywordlens/keywordlens/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "keywordlens",
	Short: "Keyword triage with embedding scores and a vision judge",
	Long: `KeywordLens triages marketplace search keywords against a reference
product. Keywords are scored by embedding similarity to the product
description, split into tiers, and then resolved through manual review
in a driven browser session or automated verification: product images
for each borderline keyword are tiled into a grid and judged against
the reference photo by a vision model.`,
	Version: version.GitRelease,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory and a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() {
			return fmt.Errorf("config already exists at %s", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.keywordlens/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "keywordlens home directory (default: ~/.keywordlens)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
