// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ansi

import (
	"strconv"
	"strings"
)

// Attribute is a bit set of SGR text attributes.
type Attribute uint16

const (
	Bold Attribute = 1 << iota
	Italic
	Dim
	Underline
	Blink
	Inverse
	Invisible
	Strikethrough
	Overline
)

// attributeCodes lists attributes in emission order with their SGR
// codes.
var attributeCodes = []struct {
	attribute Attribute
	code      int
}{
	{Bold, 1},
	{Italic, 3},
	{Dim, 2},
	{Underline, 4},
	{Blink, 5},
	{Inverse, 7},
	{Invisible, 8},
	{Strikethrough, 9},
	{Overline, 53},
}

// ColorMode says how a Color's Value is interpreted.
type ColorMode uint8

const (
	// ColorDefault is the terminal's default color. Value is ignored.
	ColorDefault ColorMode = iota
	// ColorPalette is an index into the 256-color palette.
	ColorPalette
	// ColorRGB is a 24-bit 0xRRGGBB value.
	ColorRGB
)

// Color is a foreground or background color.
type Color struct {
	Mode  ColorMode
	Value uint32
}

// Palette returns the palette color with the given index.
func Palette(index uint8) Color { return Color{Mode: ColorPalette, Value: uint32(index)} }

// RGB returns the direct color 0xRRGGBB.
func RGB(value uint32) Color { return Color{Mode: ColorRGB, Value: value & 0xffffff} }

// IsDefault reports whether c is the terminal default color.
func (c Color) IsDefault() bool { return c.Mode == ColorDefault }

// Style is the rendition of a cell.
type Style struct {
	Attributes Attribute
	Foreground Color
	Background Color
}

// IsDefault reports whether s renders as plain text.
func (s Style) IsDefault() bool {
	return s.Attributes == 0 && s.Foreground.IsDefault() && s.Background.IsDefault()
}

// Cell is one screen position. A zero Char is a blank cell that has
// never been written.
type Cell struct {
	Char rune
	Style
}

// Line is one row of cells, leftmost first.
type Line []Cell

// LineToString renders line as text decorated with the minimum SGR
// sequences needed to reproduce its styling. Trailing blank cells
// with default styling are dropped. Blank cells inside the line render
// as spaces. The result ends with a reset if the last emitted style is
// not the default.
func LineToString(line Line) string {
	end := len(line)
	for end > 0 && line[end-1].Char == 0 && line[end-1].Style.IsDefault() {
		end--
	}

	var builder strings.Builder
	var current Style
	for _, cell := range line[:end] {
		if cell.Style != current {
			current = transition(&builder, current, cell.Style)
		}
		if cell.Char == 0 {
			builder.WriteByte(' ')
		} else {
			builder.WriteRune(cell.Char)
		}
	}
	if !current.IsDefault() {
		builder.WriteString("\x1b[0m")
	}
	return builder.String()
}

// transition writes the sequences that change the rendition from
// current to target and returns target.
func transition(builder *strings.Builder, current, target Style) Style {
	turnsOff := current.Attributes&^target.Attributes != 0
	revertsForeground := !current.Foreground.IsDefault() && target.Foreground.IsDefault()
	revertsBackground := !current.Background.IsDefault() && target.Background.IsDefault()
	if turnsOff || revertsForeground || revertsBackground {
		builder.WriteString("\x1b[0m")
		current = Style{}
	}

	for _, entry := range attributeCodes {
		if target.Attributes&entry.attribute != 0 && current.Attributes&entry.attribute == 0 {
			writeSGR(builder, strconv.Itoa(entry.code))
		}
	}
	if target.Foreground != current.Foreground && !target.Foreground.IsDefault() {
		writeSGR(builder, colorParameters(target.Foreground, 30, 90, 38))
	}
	if target.Background != current.Background && !target.Background.IsDefault() {
		writeSGR(builder, colorParameters(target.Background, 40, 100, 48))
	}
	return target
}

func writeSGR(builder *strings.Builder, parameters string) {
	builder.WriteString("\x1b[")
	builder.WriteString(parameters)
	builder.WriteByte('m')
}

// colorParameters returns the SGR parameters selecting color. base is
// the code for palette color 0, bright the code for palette color 8,
// extended the code introducing 256-color and direct-color forms.
func colorParameters(color Color, base, bright, extended int) string {
	if color.Mode == ColorRGB {
		red := (color.Value >> 16) & 0xff
		green := (color.Value >> 8) & 0xff
		blue := color.Value & 0xff
		return strconv.Itoa(extended) + ";2;" +
			strconv.FormatUint(uint64(red), 10) + ";" +
			strconv.FormatUint(uint64(green), 10) + ";" +
			strconv.FormatUint(uint64(blue), 10)
	}
	index := int(color.Value)
	switch {
	case index < 8:
		return strconv.Itoa(base + index)
	case index < 16:
		return strconv.Itoa(bright + index - 8)
	default:
		return strconv.Itoa(extended) + ";5;" + strconv.Itoa(index)
	}
}
