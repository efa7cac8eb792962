package ecobee

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// UnmarshalJSON decodes one thermostatList entry. Only a non-object entry
// is an error; a badly shaped block is recorded in Malformed so the other
// blocks stay usable.
func (t *Thermostat) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid thermostat JSON")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return fmt.Errorf("thermostat entry is %s, not an object", doc.Type)
	}

	*t = Thermostat{
		Identifier: doc.Get("identifier").String(),
		Name:       doc.Get("name").String(),
	}

	if v := doc.Get(FieldEquipmentStatus); present(v) {
		if v.Type == gjson.String {
			status := v.Str
			t.EquipmentStatus = &status
		} else {
			t.malformed(FieldEquipmentStatus, fmt.Errorf("expected string, got %s", v.Type))
		}
	}

	if v := doc.Get(FieldRuntime); present(v) {
		if rt, err := decodeRuntime(v); err != nil {
			t.malformed(FieldRuntime, err)
		} else {
			t.Runtime = rt
		}
	}

	if v := doc.Get(FieldRemoteSensors); present(v) {
		if sensors, err := decodeSensors(v); err != nil {
			t.malformed(FieldRemoteSensors, err)
		} else {
			t.RemoteSensors = sensors
		}
	}

	return nil
}

func (t *Thermostat) malformed(field string, err error) {
	if t.Malformed == nil {
		t.Malformed = make(map[string]string)
	}
	t.Malformed[field] = err.Error()
}

func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

func decodeRuntime(v gjson.Result) (*Runtime, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("expected object, got %s", v.Type)
	}

	rt := &Runtime{}
	for _, r := range []struct {
		name string
		dst  *[]int
	}{
		{"desiredHeatRange", &rt.DesiredHeatRange},
		{"desiredCoolRange", &rt.DesiredCoolRange},
	} {
		field := v.Get(r.name)
		if !present(field) {
			continue
		}

		values, err := decodeInts(field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.name, err)
		}
		*r.dst = values
	}

	return rt, nil
}

func decodeInts(v gjson.Result) ([]int, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", v.Type)
	}

	elems := v.Array()
	out := make([]int, 0, len(elems))
	for i, e := range elems {
		if e.Type != gjson.Number {
			return nil, fmt.Errorf("element %d is %s, not a number", i, e.Type)
		}
		out = append(out, int(e.Int()))
	}

	return out, nil
}

// decodeSensors accepts numeric or boolean capability values and keeps
// their literal text.
func decodeSensors(v gjson.Result) ([]Sensor, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", v.Type)
	}

	var sensors []Sensor
	for i, s := range v.Array() {
		if !s.IsObject() {
			return nil, fmt.Errorf("sensor %d is %s, not an object", i, s.Type)
		}

		sensor := Sensor{Name: s.Get("name").String()}

		caps := s.Get("capability")
		if present(caps) {
			if !caps.IsArray() {
				return nil, fmt.Errorf("sensor %q capability: expected array, got %s", sensor.Name, caps.Type)
			}
			for j, c := range caps.Array() {
				if !c.IsObject() {
					return nil, fmt.Errorf("sensor %q capability %d is %s, not an object", sensor.Name, j, c.Type)
				}
				sensor.Capability = append(sensor.Capability, Capability{
					Type:  c.Get("type").String(),
					Value: c.Get("value").String(),
				})
			}
		}

		sensors = append(sensors, sensor)
	}

	return sensors, nil
}
