// Error, progress and command reporting
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

import (
	"mmu2-host/pkg/log"
	"mmu2-host/pkg/mmuerr"
	"mmu2-host/pkg/protocol"
)

// Source tells which side detected an error.
type Source uint8

const (
	SourcePrinter Source = iota
	SourceMMU
)

func (s Source) String() string {
	if s == SourcePrinter {
		return "printer"
	}
	return "mmu"
}

// errorSource attributes link level failures to the printer.
func errorSource(ec protocol.ErrorCode) Source {
	switch ec {
	case protocol.MMUNotResponding, protocol.ProtocolError, protocol.VersionMismatch:
		return SourcePrinter
	}
	return SourceMMU
}

// ErrorReport describes an error shown to the operator.
type ErrorReport struct {
	Code     protocol.ErrorCode
	Category mmuerr.Category
	Source   Source
}

// ProgressReport describes a new milestone of the running command.
type ProgressReport struct {
	Command  protocol.Command
	Progress protocol.ProgressCode
}

// CommandPhase marks the start or the end of a host command.
type CommandPhase uint8

const (
	CommandBegin CommandPhase = iota
	CommandEnd
)

// CommandReport brackets a host command such as "tool_change".
// Err is set on CommandEnd when the command failed.
type CommandReport struct {
	Name  string
	Slot  uint8
	Phase CommandPhase
	Err   error
}

// Observer receives MMU events synchronously on the control goroutine.
// Implementations must not block and must not issue blocking MMU commands.
type Observer interface {
	OnError(ErrorReport)
	OnProgress(ProgressReport)
	OnCommand(CommandReport)
	OnState(State)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	Error    func(ErrorReport)
	Progress func(ProgressReport)
	Command  func(CommandReport)
	State    func(State)
}

func (f ObserverFuncs) OnError(r ErrorReport) {
	if f.Error != nil {
		f.Error(r)
	}
}

func (f ObserverFuncs) OnProgress(r ProgressReport) {
	if f.Progress != nil {
		f.Progress(r)
	}
}

func (f ObserverFuncs) OnCommand(r CommandReport) {
	if f.Command != nil {
		f.Command(r)
	}
}

func (f ObserverFuncs) OnState(s State) {
	if f.State != nil {
		f.State(s)
	}
}

// reporter fans events out to observers once per change and echoes them
// to the log.
type reporter struct {
	log       *log.Logger
	observers []Observer

	errShown bool
	lastErr  protocol.ErrorCode
	lastSrc  Source

	progressShown bool
	lastProgress  protocol.ProgressCode
}

// error reports ec unless the same error is already shown. It returns
// whether observers were notified.
func (r *reporter) error(ec protocol.ErrorCode, src Source) bool {
	if r.errShown && r.lastErr == ec && r.lastSrc == src {
		return false
	}
	r.errShown, r.lastErr, r.lastSrc = true, ec, src
	cat := mmuerr.Classify(ec)
	r.log.WithFields(log.Fields{
		"code":   ec.String(),
		"source": src.String(),
	}).Error("Error: #%s %s", cat.Code(), cat.Title())
	rep := ErrorReport{Code: ec, Category: cat, Source: src}
	for _, o := range r.observers {
		o.OnError(rep)
	}
	return true
}

// clearError forgets the shown error so the next one is reported again.
func (r *reporter) clearError() {
	r.errShown = false
}

// progress reports pc if it differs from the last one and returns whether
// it did.
func (r *reporter) progress(cmd protocol.Command, pc protocol.ProgressCode) bool {
	if r.progressShown && r.lastProgress == pc {
		return false
	}
	r.progressShown, r.lastProgress = true, pc
	r.log.Debug("%s", pc)
	rep := ProgressReport{Command: cmd, Progress: pc}
	for _, o := range r.observers {
		o.OnProgress(rep)
	}
	return true
}

func (r *reporter) command(rep CommandReport) {
	if rep.Phase == CommandBegin {
		r.progressShown = false
		r.log.Info("%s begin", rep.Name)
	} else if rep.Err != nil {
		r.log.WithError(rep.Err).Warn("%s failed", rep.Name)
	} else {
		r.log.Info("%s done", rep.Name)
	}
	for _, o := range r.observers {
		o.OnCommand(rep)
	}
}

func (r *reporter) state(s State) {
	r.log.Info("state %s", s)
	for _, o := range r.observers {
		o.OnState(s)
	}
}
