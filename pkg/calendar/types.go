package calendar

import "github.com/venkytv/calendar-grid/internal/models"

// Calendar represents metadata about a calendar as reported by its store
type Calendar struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Color is a hex string such as "#FF9500"; empty when the store has none
	Color       string `json:"color,omitempty"`
	TimeZone    string `json:"timezone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
	Writable    bool   `json:"writable"`
	AccountName string `json:"account_name,omitempty"`
}

// Source converts the store metadata into a CalendarSource. Missing names
// fall back to the id and missing colours to the palette.
func (c *Calendar) Source(storeName string, priority int) models.CalendarSource {
	src := models.CalendarSource{
		ID:          c.ID,
		DisplayName: c.Name,
		IsWritable:  c.Writable,
		AccountName: c.AccountName,
		StoreName:   storeName,
		Priority:    priority,
	}
	if src.DisplayName == "" {
		src.DisplayName = c.ID
	}
	if src.AccountName == "" {
		src.AccountName = storeName
	}
	if rgb, err := models.ParseHex(c.Color); err == nil {
		src.Color = rgb
	} else {
		src.Color = models.PaletteColor(c.ID)
	}
	return src
}
