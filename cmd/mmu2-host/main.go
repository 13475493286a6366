// mmu2-host drives a Prusa MMU2/MMU3 filament changer from the printer host.
//
// Usage:
//
//	mmu2-host run --config ~/printer.cfg [--script "T0 T1 U"] [--http :9100]
//	mmu2-host classify 0x8001
//	mmu2-host errors
//	mmu2-host config --config ~/printer.cfg
//
// Flags may also be given as MMU2_* environment variables or in
// mmu2-host.yaml.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package main

import "mmu2-host/cmd/mmu2-host/commands"

func main() {
	commands.Execute()
}
