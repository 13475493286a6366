// Simulated operator answering error screens
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sim

// Operator stands in for the person answering error screens. Selections
// queued with Choose are returned first. With auto answering enabled it
// picks the configured choice after a number of unanswered polls.
type Operator struct {
	queue []int

	auto     bool
	choice   int
	patience int
	polls    int
}

// Choose queues a selection index.
func (o *Operator) Choose(index int) { o.queue = append(o.queue, index) }

// SetAuto answers every error screen with choice after patience polls.
func (o *Operator) SetAuto(choice, patience int) {
	o.auto, o.choice, o.patience, o.polls = true, choice, patience, 0
}

// DiscardSelections drops queued choices and restarts the auto answer
// countdown.
func (o *Operator) DiscardSelections() {
	o.queue = nil
	o.polls = 0
}

func (o *Operator) PollSelection() (int, bool) {
	if len(o.queue) > 0 {
		idx := o.queue[0]
		o.queue = o.queue[1:]
		return idx, true
	}
	if !o.auto {
		return 0, false
	}
	o.polls++
	if o.polls < o.patience {
		return 0, false
	}
	o.polls = 0
	return o.choice, true
}
