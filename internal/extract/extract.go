package extract

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/ecobee-exporter/internal/ecobee"
	"codeberg.org/mutker/ecobee-exporter/internal/errors"
)

type extractionError struct {
	Field string
	Value string
}

// malformed reports a block the client could not decode.
func malformed(t *ecobee.Thermostat, field string) error {
	if msg, ok := t.Malformed[field]; ok {
		return fieldError(field, msg)
	}
	return nil
}

func fieldError(field, value string) error {
	return errors.New().WithData(errors.ErrExtractionFailed, extractionError{
		Field: field,
		Value: value,
	})
}

var equipmentKeywords = []struct {
	keyword string
	metric  string
}{
	{"fan", MetricFanStatus},
	{"heat", MetricHeatStatus},
	{"cool", MetricCoolStatus},
}

// Equipment reports fan, heat and cool activity. A keyword matches any
// status token containing it, so "ventilator_fan" counts as fan.
func Equipment(t *ecobee.Thermostat) ([]Observation, error) {
	if err := malformed(t, ecobee.FieldEquipmentStatus); err != nil {
		return nil, err
	}
	if t.EquipmentStatus == nil {
		return nil, fieldError(ecobee.FieldEquipmentStatus, "")
	}

	tokens := strings.Split(strings.ToLower(*t.EquipmentStatus), ",")

	obs := make([]Observation, 0, len(equipmentKeywords))
	for _, k := range equipmentKeywords {
		value := 0.0
		for _, tok := range tokens {
			if strings.Contains(tok, k.keyword) {
				value = 1
				break
			}
		}

		obs = append(obs, Observation{
			Name: k.metric,
			Labels: map[string]string{
				LabelThermostatName: t.Name,
				LabelType:           k.keyword,
			},
			Value: value,
		})
	}

	return obs, nil
}

// Setpoints reports the desired cool and heat ranges in degrees.
func Setpoints(t *ecobee.Thermostat) ([]Observation, error) {
	if err := malformed(t, ecobee.FieldRuntime); err != nil {
		return nil, err
	}
	if t.Runtime == nil {
		return nil, fieldError(ecobee.FieldRuntime, "")
	}

	ranges := []struct {
		field  string
		metric string
		values []int
	}{
		{"desiredCoolRange", MetricDesiredCoolRange, t.Runtime.DesiredCoolRange},
		{"desiredHeatRange", MetricDesiredHeatRange, t.Runtime.DesiredHeatRange},
	}

	obs := make([]Observation, 0, 4)
	for _, r := range ranges {
		if len(r.values) != 2 {
			return nil, fieldError(r.field, strconv.Itoa(len(r.values))+" values")
		}

		for i, bound := range []string{"low", "high"} {
			obs = append(obs, Observation{
				Name: r.metric,
				Labels: map[string]string{
					LabelThermostatName: t.Name,
					LabelType:           bound,
				},
				Value: float64(r.values[i]) / 10.0,
			})
		}
	}

	return obs, nil
}

// Sensors reports temperature, humidity and occupancy for every remote
// sensor. Other capability types are ignored.
func Sensors(t *ecobee.Thermostat) ([]Observation, error) {
	if err := malformed(t, ecobee.FieldRemoteSensors); err != nil {
		return nil, err
	}

	var obs []Observation

	for _, sensor := range t.RemoteSensors {
		for _, c := range sensor.Capability {
			var (
				name  string
				value float64
				err   error
			)

			switch c.Type {
			case "temperature":
				name = MetricTemperatureActual
				value, err = parseNumber(c.Value)
				value /= 10.0
			case "humidity":
				name = MetricHumidity
				value, err = parseNumber(c.Value)
			case "occupancy":
				name = MetricOccupancy
				value, err = decodeOccupancy(c.Value)
			default:
				continue
			}

			if err != nil {
				return nil, err
			}

			obs = append(obs, Observation{
				Name: name,
				Labels: map[string]string{
					LabelThermostatName: t.Name,
					LabelSensorName:     sensor.Name,
				},
				Value: value,
			})
		}
	}

	return obs, nil
}

// Settings would export the per-setting block. It is not supported.
func Settings(*ecobee.Thermostat) ([]Observation, error) {
	return nil, errors.New().WithMessage(errors.ErrNotImplemented, "settings export is not supported")
}

// decodeOccupancy maps "true"/"false" in any case to 1/0. Anything else is
// passed through as a number.
func decodeOccupancy(v string) (float64, error) {
	switch strings.ToLower(v) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	default:
		return parseNumber(v)
	}
}

func parseNumber(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fieldError("value", v)
	}
	return f, nil
}
