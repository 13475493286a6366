// Error classification subcommands
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mmu2-host/pkg/mmuerr"
	"mmu2-host/pkg/protocol"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <code>",
	Short: "Show the operator error for a raw MMU error code",
	Long:  `Classifies a 16-bit MMU error code, given in decimal or 0x hex, and prints the error screen it produces.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List every operator error",
	Args:  cobra.NoArgs,
	RunE:  runErrors,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(errorsCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	raw, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid error code %q: %w", args[0], err)
	}
	code := protocol.ErrorCode(raw)
	c := mmuerr.Classify(code)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "code:        0x%04X (%s)\n", uint16(code), code)
	fmt.Fprintf(out, "error:       #%s\n", c.Code())
	fmt.Fprintf(out, "title:       %s\n", c.Title())
	fmt.Fprintf(out, "description: %s\n", c.Description())
	fmt.Fprintf(out, "buttons:     %s\n", c.Buttons())
	return nil
}

func runErrors(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-7s %-22s %-24s\n", "CODE", "TITLE", "BUTTONS")
	fmt.Fprintln(out, "-----------------------------------------------------")
	for _, c := range mmuerr.Categories() {
		fmt.Fprintf(out, "%-7s %-22s %-24s\n", c.Code(), c.Title(), c.Buttons())
	}
	return nil
}
