/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensors

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandSource reads a device through a helper program that prints one
// line of whitespace-separated numbers, one per field in order.
type CommandSource struct {
	name    string
	fields  []Field
	argv    []string
	timeout time.Duration
}

// NewCommandSource creates a source running argv[0] with argv[1:].
func NewCommandSource(name string, fields []Field, argv []string, timeout time.Duration) *CommandSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CommandSource{name: name, fields: fields, argv: argv, timeout: timeout}
}

// Name implements Source.
func (c *CommandSource) Name() string { return c.name }

// Fields implements Source.
func (c *CommandSource) Fields() []Field { return c.fields }

// Read implements Source.
func (c *CommandSource) Read(ctx context.Context) (Values, error) {
	if len(c.argv) == 0 {
		return nil, fmt.Errorf("%s: no command configured", c.name)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: run helper: %w", c.name, err)
	}
	return parseValues(c.fields, string(out))
}

func parseValues(fields []Field, out string) (Values, error) {
	tokens := strings.Fields(out)
	if len(tokens) < len(fields) {
		return nil, fmt.Errorf("helper printed %d values, want %d", len(tokens), len(fields))
	}
	values := make(Values, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		values[f] = v
	}
	return values, nil
}
