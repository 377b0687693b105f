package models

// SliderPreset describes a single-value slider.
type SliderPreset struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// RangePreset describes a two-handle slider.
type RangePreset struct {
	Min         int `json:"min"`
	Max         int `json:"max"`
	DefaultLow  int `json:"defaultLow"`
	DefaultHigh int `json:"defaultHigh"`
}

// Controls are the unit-dependent input presets for the dashboard.
type Controls struct {
	Unit      Unit         `json:"unit"`
	Symbol    string       `json:"symbol"`
	Threshold SliderPreset `json:"threshold"`
	Table     RangePreset  `json:"table"`
	Horizon   SliderPreset `json:"horizonYears"`
}

// ControlsFor returns the presets for unit.
func ControlsFor(unit Unit) Controls {
	c := Controls{
		Unit:    unit,
		Symbol:  unit.Symbol(),
		Horizon: SliderPreset{Min: 1, Max: 5, Default: 1},
	}
	if unit == Celsius {
		c.Threshold = SliderPreset{Min: -25, Max: 10, Default: -15}
		c.Table = RangePreset{Min: -30, Max: 15, DefaultLow: -20, DefaultHigh: -10}
		return c
	}
	c.Threshold = SliderPreset{Min: -15, Max: 50, Default: 5}
	c.Table = RangePreset{Min: -25, Max: 60, DefaultLow: 0, DefaultHigh: 15}
	return c
}
