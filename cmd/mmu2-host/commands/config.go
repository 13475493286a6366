// config subcommand: validate and print the [mmu2] section
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package commands

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mmu2-host/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective [mmu2] settings as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().Bool("defaults", false, "Print the defaults without reading the printer config")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	mcfg := config.DefaultMMU()
	if defaults, _ := cmd.Flags().GetBool("defaults"); !defaults {
		var err error
		if mcfg, err = loadMMUConfig(opts.PrinterConfig); err != nil {
			return err
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(map[string]config.MMU{config.MMUSection: mcfg}); err != nil {
		return err
	}
	return enc.Close()
}

func loadMMUConfig(path string) (config.MMU, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.MMU{}, err
	}
	return config.LoadMMU(cfg)
}
