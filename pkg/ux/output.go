// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides styled terminal output for the catalogsync CLI.
//
// Output has two modes: styled (colors, icons, animated spinner) for
// interactive terminals, and plain (prefixed single lines) for pipes
// and CI logs. Call Plain(true) to force plain mode; by default the
// caller decides based on whether stdout is a terminal.
package ux

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
	ColorAccent  = lipgloss.Color("#20B9B4")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorAccent).Bold(true),
}

var (
	plainMu   sync.RWMutex
	plainMode bool
)

// Plain switches between plain and styled output.
func Plain(enabled bool) {
	plainMu.Lock()
	plainMode = enabled
	plainMu.Unlock()
}

// IsPlain reports whether plain output mode is active.
func IsPlain() bool {
	plainMu.RLock()
	defer plainMu.RUnlock()
	return plainMode
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Success.Render("✓"), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Error.Render("✗"), Styles.Error.Render(text))
}

// Info prints an informational message.
func Info(text string) {
	if IsPlain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Title prints a styled heading. Suppressed in plain mode.
func Title(text string) {
	if IsPlain() {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// CountLine formats a sequence of labeled counts on one line, e.g.
// "3 inserted  1 updated  0 deleted".
func CountLine(pairs ...CountPair) string {
	if IsPlain() {
		out := ""
		for i, p := range pairs {
			if i > 0 {
				out += " "
			}
			out += fmt.Sprintf("%s=%d", p.Label, p.Count)
		}
		return out
	}
	out := ""
	for i, p := range pairs {
		if i > 0 {
			out += "  "
		}
		style := Styles.Bold
		if p.Count == 0 {
			style = Styles.Muted
		}
		out += style.Render(fmt.Sprintf("%d", p.Count)) + " " + Styles.Muted.Render(p.Label)
	}
	return out
}

// CountPair is a labeled count for CountLine.
type CountPair struct {
	Label string
	Count int
}
