package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CalendarSource is a calendar as shown to the user, after customizations
// have been applied to the store metadata
type CalendarSource struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Color       RGB    `json:"color"`
	IsHidden    bool   `json:"is_hidden"`
	IsWritable  bool   `json:"is_writable"`
	AccountName string `json:"account_name,omitempty"`
	// StoreName is the configured store the calendar belongs to
	StoreName string `json:"store_name,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

// Customization holds the user's overrides for a calendar. The JSON shape is
// shared with other clients and must stay flat.
type Customization struct {
	ID       string  `json:"id"`
	Nickname *string `json:"nickname,omitempty"`
	ColorHex *string `json:"colorHex,omitempty"`
	IsHidden bool    `json:"isHidden"`
}

// Apply returns src with the customization merged in. Invalid colour strings
// leave the store colour untouched.
func (c *Customization) Apply(src CalendarSource) CalendarSource {
	if c == nil || c.ID != src.ID {
		return src
	}
	if c.Nickname != nil && strings.TrimSpace(*c.Nickname) != "" {
		src.DisplayName = *c.Nickname
	}
	if c.ColorHex != nil {
		if rgb, err := ParseHex(*c.ColorHex); err == nil {
			src.Color = rgb
		}
	}
	src.IsHidden = c.IsHidden
	return src
}

// RGB is an sRGB colour with alpha
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// ParseHex parses "#RRGGBB" or "#RRGGBBAA"; the leading '#' is optional
func ParseHex(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return RGB{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	if len(h) == 6 {
		return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	return RGB{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// MustParseHex is ParseHex for constants
func MustParseHex(s string) RGB {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats the colour as "#RRGGBB", adding alpha only when not opaque
func (c RGB) Hex() string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

// IsZero reports whether the colour is unset
func (c RGB) IsZero() bool {
	return c == RGB{}
}

// Palette is the set of colours offered for calendars without one
var Palette = []RGB{
	MustParseHex("#FF0000"),
	MustParseHex("#FF9500"),
	MustParseHex("#FFCC00"),
	MustParseHex("#34C759"),
	MustParseHex("#00C7BE"),
	MustParseHex("#007AFF"),
	MustParseHex("#5856D6"),
	MustParseHex("#AF52DE"),
	MustParseHex("#FF2D55"),
	MustParseHex("#8E8E93"),
}

// PaletteColor picks a stable palette colour for a calendar id
func PaletteColor(id string) RGB {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return Palette[h%uint32(len(Palette))]
}
