package extract

import "codeberg.org/mutker/ecobee-exporter/internal/ecobee"

// Observation is a single gauge sample. Name carries no namespace prefix.
type Observation struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Extractor turns one thermostat into observations. An error discards the
// extractor's whole contribution for that thermostat.
type Extractor func(t *ecobee.Thermostat) ([]Observation, error)

// Named pairs an extractor with the name used in logs and error counts.
type Named struct {
	Name    string
	Extract Extractor
}

// Default returns the extractors run on every cycle. Settings is not included.
func Default() []Named {
	return []Named{
		{Name: "equipment", Extract: Equipment},
		{Name: "setpoints", Extract: Setpoints},
		{Name: "sensors", Extract: Sensors},
	}
}
