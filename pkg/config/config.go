// Package config parses Klipper style printer.cfg files with access
// tracking, and reads the [mmu2] section into typed settings.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mmu2-host/pkg/errors"
)

// Config holds the parsed sections of one configuration file tree.
type Config struct {
	mu       sync.Mutex
	sections map[string]*Section
	order    []string
	accessed map[string]struct{}
}

func newConfig() *Config {
	return &Config{
		sections: make(map[string]*Section),
		accessed: make(map[string]struct{}),
	}
}

// Load reads a configuration file. [include path] directives are resolved
// relative to the including file and may contain glob patterns.
func Load(path string) (*Config, error) {
	c := newConfig()
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses configuration text. Includes are not allowed.
func LoadString(data string) (*Config, error) {
	return Parse(strings.NewReader(data))
}

// Parse reads configuration text from r. Includes are not allowed.
func Parse(r io.Reader) (*Config, error) {
	c := newConfig()
	err := c.parse(r, "<input>", func(string) error {
		return errors.New(errors.ErrConfigValidation, "include not supported here")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "invalid path "+path)
	}
	if visited[abs] {
		return errors.New(errors.ErrConfigValidation, "recursive include: "+path)
	}
	visited[abs] = true
	defer delete(visited, abs)

	f, err := os.Open(abs)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "unable to open "+path)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	return c.parse(f, path, func(spec string) error {
		pattern := filepath.Join(dir, spec)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return errors.Wrap(err, errors.ErrConfigValidation, "invalid include pattern "+spec)
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
			return errors.New(errors.ErrConfigSection, "include file does not exist: "+pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if err := c.parseFile(m, visited); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Config) parse(r io.Reader, name string, include func(string) error) error {
	var (
		section string
		options map[string]string
		lineNum int
	)
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
		section, options = "", nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		// "#*#" lines hold SAVE_CONFIG output and are parsed as config.
		if rest, ok := strings.CutPrefix(line, "#*#"); ok {
			line = strings.TrimSpace(rest)
			if strings.HasPrefix(line, "<") {
				continue
			}
		} else if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return errors.New(errors.ErrConfigSection, "empty section header").At(name, lineNum)
			}
			if spec, ok := strings.CutPrefix(header, "include "); ok {
				if err := include(strings.TrimSpace(spec)); err != nil {
					if he, ok := err.(*errors.HostError); ok && he.Pos == "" {
						he.At(name, lineNum)
					}
					return err
				}
				continue
			}
			section = header
			options = make(map[string]string)
			continue
		}
		if section == "" {
			continue
		}

		key, value, ok := splitOption(line)
		if !ok {
			return errors.New(errors.ErrConfigOption, fmt.Sprintf("unparseable line %q", line)).
				SetSection(section).At(name, lineNum)
		}
		options[key] = value
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "error reading "+name)
	}
	flush()
	return nil
}

// splitOption accepts "key: value" and "key = value", whichever separator
// comes first.
func splitOption(line string) (string, string, bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// Section returns the named section and records the access.
func (c *Config) Section(name string) (*Section, error) {
	if s := c.SectionOptional(name); s != nil {
		return s, nil
	}
	return nil, errors.ConfigSectionError(name)
}

// SectionOptional returns the named section or nil.
func (c *Config) SectionOptional(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sections[name]
	if ok {
		c.accessed[name] = struct{}{}
	}
	return s
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sections[name]
	return ok
}

// SectionNames returns all section names in file order.
func (c *Config) SectionNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// UnusedSections returns the sections nothing asked for, sorted.
func (c *Config) UnusedSections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for name := range c.sections {
		if _, ok := c.accessed[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
