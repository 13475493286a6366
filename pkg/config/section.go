// Config sections with option access tracking
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"mmu2-host/pkg/errors"
)

// Section provides typed access to one config section and records which
// options were read.
type Section struct {
	name    string
	options map[string]string

	mu       sync.Mutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{name: name, options: opts, accessed: make(map[string]struct{})}
}

// Name returns the section name.
func (s *Section) Name() string { return s.name }

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// lookup returns the raw value and marks the option accessed either way.
func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.mu.Lock()
	s.accessed[key] = struct{}{}
	s.mu.Unlock()
	v, ok := s.options[key]
	return strings.TrimSpace(v), ok
}

// UnusedOptions returns the options nothing asked for, sorted.
func (s *Section) UnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			out = append(out, opt)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns a string option value, the fallback if given, or an error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", errors.ConfigOptionError(s.name, option)
}

func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errors.ConfigOptionError(s.name, option)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.ConfigTypeError(s.name, option, v, "integer", err)
	}
	return i, nil
}

// GetIntRange returns an integer option that must lie in [minVal, maxVal].
func (s *Section) GetIntRange(option string, minVal, maxVal int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v < minVal || v > maxVal {
		return 0, errors.ConfigValidationError(s.name, option,
			"value "+strconv.Itoa(v)+" must be between "+strconv.Itoa(minVal)+" and "+strconv.Itoa(maxVal))
	}
	return v, nil
}

func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errors.ConfigOptionError(s.name, option)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.ConfigTypeError(s.name, option, v, "float", err)
	}
	return f, nil
}

// FloatBounds specifies bounds for GetFloatBounded. Nil fields are unchecked.
type FloatBounds struct {
	MinVal *float64 // >=
	MaxVal *float64 // <=
	Above  *float64 // >
	Below  *float64 // <
}

// Min and Above build single-bound FloatBounds values.
func Min(v float64) FloatBounds   { return FloatBounds{MinVal: &v} }
func Above(v float64) FloatBounds { return FloatBounds{Above: &v} }

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// GetFloatBounded returns a float option value with bounds checking.
func (s *Section) GetFloatBounded(option string, b FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	var reason string
	switch {
	case b.MinVal != nil && v < *b.MinVal:
		reason = "must have minimum of " + fmtFloat(*b.MinVal)
	case b.MaxVal != nil && v > *b.MaxVal:
		reason = "must have maximum of " + fmtFloat(*b.MaxVal)
	case b.Above != nil && v <= *b.Above:
		reason = "must be above " + fmtFloat(*b.Above)
	case b.Below != nil && v >= *b.Below:
		reason = "must be below " + fmtFloat(*b.Below)
	default:
		return v, nil
	}
	return 0, errors.ConfigValidationError(s.name, option, "value "+fmtFloat(v)+" "+reason)
}

// GetDuration reads a number of seconds.
func (s *Section) GetDuration(option string, b FloatBounds, fallback time.Duration) (time.Duration, error) {
	secs, err := s.GetFloatBounded(option, b, fallback.Seconds())
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// GetBool accepts 1/true/yes/on and 0/false/no/off.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return false, errors.ConfigOptionError(s.name, option)
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errors.ConfigTypeError(s.name, option, v, "boolean", nil)
}

// GetChoice returns a string option that must be one of choices.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", errors.ConfigValidationError(s.name, option,
		"value '"+v+"' must be one of "+strings.Join(choices, ", "))
}
