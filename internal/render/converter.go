// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Converter turns markdown text into its presentation form.
// Implementations must be deterministic for identical input.
type Converter interface {
	Convert(text string) (string, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(text string) (string, error)

// Convert implements Converter.
func (f ConverterFunc) Convert(text string) (string, error) {
	return f(text)
}

// Plain returns text unchanged. Used for piped output and tests.
var Plain Converter = ConverterFunc(func(text string) (string, error) {
	return text, nil
})

// =============================================================================
// GLAMOUR CONVERTER
// =============================================================================

// Style names accepted by ResolveStyle and NewGlamourConverter.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleASCII = "ascii"
)

// ResolveStyle maps "auto" to dark or light from the terminal background.
func ResolveStyle(style string) string {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "", StyleAuto:
		if termenv.HasDarkBackground() {
			return StyleDark
		}
		return StyleLight
	default:
		return strings.ToLower(style)
	}
}

// GlamourConverter renders markdown for the terminal with glamour.
type GlamourConverter struct {
	mu    sync.Mutex
	r     *glamour.TermRenderer
	style string
	wrap  int
}

// NewGlamourConverter creates a converter for the given style and word wrap width.
func NewGlamourConverter(style string, wordWrap int) (*GlamourConverter, error) {
	resolved := ResolveStyle(style)
	if wordWrap <= 0 {
		wordWrap = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(resolved),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s renderer: %w", resolved, err)
	}
	return &GlamourConverter{r: r, style: resolved, wrap: wordWrap}, nil
}

// Convert implements Converter. Surrounding blank lines are trimmed.
func (g *GlamourConverter) Convert(text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out, err := g.r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}

// Style returns the resolved style name.
func (g *GlamourConverter) Style() string {
	return g.style
}

// WordWrap returns the wrap width.
func (g *GlamourConverter) WordWrap() int {
	return g.wrap
}
