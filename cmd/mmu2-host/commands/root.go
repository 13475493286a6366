// Root command and shared flags of mmu2-host
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mmu2-host/internal/settings"
	"mmu2-host/pkg/log"
)

var (
	v    = viper.New()
	opts *settings.Settings
)

var rootCmd = &cobra.Command{
	Use:   "mmu2-host",
	Short: "MMU2 multi-material unit host",
	Long: `Orchestrates a Prusa MMU2/MMU3 filament changer: tool changes, error
recovery with toolhead parking and nozzle cooldown, and operator error screens.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "printer.cfg", "Printer configuration file with an [mmu2] section")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")

	v.BindPFlag("config", pf.Lookup("config"))
	v.BindPFlag("log-level", pf.Lookup("log-level"))
	v.BindPFlag("log-format", pf.Lookup("log-format"))
}

func setup(cmd *cobra.Command, args []string) error {
	s, err := settings.Load(v)
	if err != nil {
		return err
	}
	opts = s

	l := log.New("mmu2")
	log.ConfigureFromEnv(l)
	l.SetLevel(log.ParseLevel(s.LogLevel))
	l.SetFormat(log.ParseFormat(s.LogFormat))
	l.SetWriter(cmd.ErrOrStderr())
	log.SetDefaultLogger(l)
	return nil
}
