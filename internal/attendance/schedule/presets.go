package schedule

// Preset is one named shift window offered to the employee
type Preset struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
	Icon  string `json:"icon"`
}

// Presets groups the three named shift presets
type Presets struct {
	Morning   Preset `json:"morning"`
	Afternoon Preset `json:"afternoon"`
	Night     Preset `json:"night"`
}

// Built-in defaults used when the outlet is absent or a field is missing.
var defaultPresets = Presets{
	Morning:   Preset{Label: "Morning", Start: "08:00", End: "17:00", Icon: "sunrise"},
	Afternoon: Preset{Label: "Afternoon", Start: "12:00", End: "21:00", Icon: "sun"},
	Night:     Preset{Label: "Night", Start: "20:00", End: "05:00", Icon: "moon"},
}

// ResolvePresets derives the named shift presets from the outlet
// configuration, falling back per field to the built-in defaults. Outlet
// values in "HH:MM:SS" form are truncated to "HH:MM".
func ResolvePresets(outlet *Outlet) Presets {
	p := defaultPresets
	if outlet == nil {
		return p
	}

	applyPreset(&p.Morning, outlet.ShiftPagiStart, outlet.ShiftPagiEnd)
	applyPreset(&p.Afternoon, outlet.ShiftSiangStart, outlet.ShiftSiangEnd)
	applyPreset(&p.Night, outlet.ShiftMalamStart, outlet.ShiftMalamEnd)

	return p
}

func applyPreset(p *Preset, start, end string) {
	if start != "" {
		p.Start = TruncateClock(start)
	}
	if end != "" {
		p.End = TruncateClock(end)
	}
}
