// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders analysis results for humans and machines.
//
// Text output follows a fixed line layout so it can be grepped and diffed:
// module headers are "[Module: name]", list items are indented "  - ".
// Color is applied on top of that layout and never changes the text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette, shared with the rest of the Aleutian tooling.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorSlate       = lipgloss.Color("#2C4A54")
	ColorWarning     = lipgloss.Color("#F4D03F")
	ColorError       = lipgloss.Color("#E74C3C")
)

// Styles are the lipgloss styles used by the text renderer.
type Styles struct {
	Header  lipgloss.Style
	Class   lipgloss.Style
	Target  lipgloss.Style
	Muted   lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Header:  r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Class:   r.NewStyle().Foreground(ColorTealPrimary),
		Target:  r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(ColorSlate),
		Added:   r.NewStyle().Foreground(ColorTealBright),
		Removed: r.NewStyle().Foreground(ColorError),
	}
}

// ColorEnabled reports whether f should get colored output.
//
// Color is off when noColor is set, when NO_COLOR is in the environment,
// or when f is not a terminal.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Renderer writes text reports to one writer.
//
// Thread Safety: NOT safe for concurrent use.
type Renderer struct {
	w      io.Writer
	color  bool
	styles Styles
	err    error
}

// NewRenderer creates a text renderer. With color false the output is
// plain text.
func NewRenderer(w io.Writer, color bool) *Renderer {
	return &Renderer{
		w:      w,
		color:  color,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// paint applies s when color is on.
func (r *Renderer) paint(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// line writes one line. The first write error sticks and later writes
// are skipped; flush returns it.
func (r *Renderer) line(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *Renderer) flush() error {
	err := r.err
	r.err = nil
	return err
}

func (r *Renderer) moduleHeader(module string) string {
	return r.paint(r.styles.Header, "[Module: "+module+"]")
}

// JSON writes v as indented JSON followed by a newline.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
