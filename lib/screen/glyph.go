// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"github.com/hinshun/vt10x"

	"github.com/bureau-foundation/termplex/lib/ansi"
)

// Glyph attribute bits as vt10x stores them in Glyph.Mode.
const (
	glyphReverse int16 = 1 << iota
	glyphUnderline
	glyphBold
	glyphGraphics
	glyphItalic
	glyphBlink
)

func convertGlyph(glyph vt10x.Glyph) ansi.Cell {
	var attributes ansi.Attribute
	if glyph.Mode&glyphBold != 0 {
		attributes |= ansi.Bold
	}
	if glyph.Mode&glyphItalic != 0 {
		attributes |= ansi.Italic
	}
	if glyph.Mode&glyphUnderline != 0 {
		attributes |= ansi.Underline
	}
	if glyph.Mode&glyphBlink != 0 {
		attributes |= ansi.Blink
	}
	if glyph.Mode&glyphReverse != 0 {
		attributes |= ansi.Inverse
	}

	foreground, background := glyph.FG, glyph.BG
	if glyph.Mode&glyphReverse != 0 {
		// vt10x stores reversed cells with the colors already swapped.
		foreground, background = background, foreground
	} else if glyph.Mode&glyphBold != 0 && foreground >= 8 && foreground < 16 {
		// vt10x brightens bold low-palette foregrounds when storing them.
		foreground -= 8
	}

	cell := ansi.Cell{
		Char: glyph.Char,
		Style: ansi.Style{
			Attributes: attributes,
			Foreground: convertColor(foreground),
			Background: convertColor(background),
		},
	}
	// The emulator erases with spaces; report those as never written.
	if cell.Char == ' ' && cell.Style.IsDefault() {
		cell.Char = 0
	}
	return cell
}

// convertColor maps vt10x's color space onto ansi.Color. vt10x packs
// direct colors into the same integer as palette indexes, so a direct
// color with a value below 256 reads back as a palette color.
func convertColor(color vt10x.Color) ansi.Color {
	switch {
	case color >= vt10x.DefaultFG:
		return ansi.Color{}
	case color < 256:
		return ansi.Palette(uint8(color))
	default:
		return ansi.RGB(uint32(color))
	}
}
