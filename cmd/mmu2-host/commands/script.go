// Tool change scripts and operator input sources
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package commands

import (
	"fmt"
	"strconv"
	"strings"

	"mmu2-host/pkg/mmu"
	"mmu2-host/pkg/protocol"
	"mmu2-host/pkg/sim"
)

// step is one script token, e.g. T2 for a tool change to slot 2.
type step struct {
	op  byte
	arg uint8
}

func (s step) String() string {
	if s.op == 'U' {
		return "U"
	}
	return fmt.Sprintf("%c%d", s.op, s.arg)
}

func isSeparator(r rune) bool {
	return r == ' ' || r == ',' || r == ';' || r == '\t' || r == '\n'
}

// parseScript parses tokens separated by spaces, commas or semicolons:
//
//	T<n> tool change      L<n> load into the MMU   N<n> load to nozzle
//	F<n> load to feeder   U    unload              E<n> eject
//	K<n> cut              H<n> home                R<n> reset (0 soft, 1 pin, 2 power)
func parseScript(script string) ([]step, error) {
	var steps []step
	for _, tok := range strings.FieldsFunc(script, isSeparator) {
		op := strings.ToUpper(tok[:1])[0]
		rest := tok[1:]
		switch op {
		case 'U':
			if rest != "" {
				return nil, fmt.Errorf("script: %q takes no argument", tok)
			}
			steps = append(steps, step{op: op, arg: mmu.NoSlot})
		case 'T', 'L', 'N', 'F', 'E', 'K', 'H', 'R':
			n, err := strconv.ParseUint(rest, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("script: %q needs a numeric argument", tok)
			}
			if op == 'R' && n > uint64(mmu.ResetPowerCycle) {
				return nil, fmt.Errorf("script: unknown reset level in %q", tok)
			}
			steps = append(steps, step{op: op, arg: uint8(n)})
		default:
			return nil, fmt.Errorf("script: unknown command %q", tok)
		}
	}
	return steps, nil
}

func (s step) run(m *mmu.MMU) error {
	switch s.op {
	case 'T':
		return m.ToolChange(s.arg)
	case 'L':
		return m.LoadFilament(s.arg)
	case 'N':
		return m.LoadToNozzle(s.arg)
	case 'F':
		return m.LoadToFeeder(s.arg)
	case 'U':
		return m.Unload()
	case 'E':
		return m.Eject(s.arg, false)
	case 'K':
		return m.Cut(s.arg)
	case 'H':
		return m.Home(s.arg)
	case 'R':
		return m.Reset(mmu.ResetForm(s.arg))
	}
	return fmt.Errorf("script: unknown command %c", s.op)
}

// parseFault parses "<command>:<stage>:<code>[:<times>]" where command is a
// request letter (T, L, U, E, K, H) or * for any, stage is a progress code
// number and code is an error code in decimal or 0x hex.
func parseFault(spec string) (sim.Fault, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return sim.Fault{}, fmt.Errorf("fault %q: want command:stage:code[:times]", spec)
	}

	var f sim.Fault
	switch c := strings.ToUpper(parts[0]); c {
	case "*":
	case "T", "L", "U", "E", "K", "H":
		f.Command = protocol.Command(c[0])
	default:
		return sim.Fault{}, fmt.Errorf("fault %q: unknown command %q", spec, parts[0])
	}

	stage, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || stage >= uint64(len(protocol.ProgressCodes())) {
		return sim.Fault{}, fmt.Errorf("fault %q: invalid stage %q", spec, parts[1])
	}
	f.Stage = protocol.ProgressCode(stage)

	code, err := strconv.ParseUint(parts[2], 0, 16)
	if err != nil || !protocol.ErrorCode(code).IsError() {
		return sim.Fault{}, fmt.Errorf("fault %q: invalid error code %q", spec, parts[2])
	}
	f.Code = protocol.ErrorCode(code)

	f.Times = 1
	if len(parts) == 4 {
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 1 {
			return sim.Fault{}, fmt.Errorf("fault %q: invalid count %q", spec, parts[3])
		}
		f.Times = n
	}
	return f, nil
}

// inputs polls each source in order and returns the first selection.
type inputs []mmu.UserInput

func (in inputs) PollSelection() (int, bool) {
	for _, src := range in {
		if idx, ok := src.PollSelection(); ok {
			return idx, true
		}
	}
	return 0, false
}

func (in inputs) DiscardSelections() {
	for _, src := range in {
		src.DiscardSelections()
	}
}
