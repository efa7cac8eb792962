package extract

// Metric names, without the ecobee_ namespace.
const (
	MetricFanStatus         = "fan_status"
	MetricHeatStatus        = "heat_status"
	MetricCoolStatus        = "cool_status"
	MetricDesiredCoolRange  = "desired_cool_range"
	MetricDesiredHeatRange  = "desired_heat_range"
	MetricTemperatureActual = "temperature_actual"
	MetricHumidity          = "humidity"
	MetricOccupancy         = "occupancy"
)

// Label names.
const (
	LabelThermostatName = "thermostat_name"
	LabelSensorName     = "sensor_name"
	LabelType           = "type"
)

// MetricInfo describes one gauge family the pipeline can produce.
type MetricInfo struct {
	Name   string
	Help   string
	Labels []string
}

// Metrics lists every gauge family emitted by the default extractors.
func Metrics() []MetricInfo {
	status := []string{LabelThermostatName, LabelType}
	ranges := []string{LabelThermostatName, LabelType}
	sensor := []string{LabelThermostatName, LabelSensorName}

	return []MetricInfo{
		{Name: MetricFanStatus, Help: "Indicates whether HVAC system is running the fan", Labels: status},
		{Name: MetricHeatStatus, Help: "Indicates whether HVAC system is actively heating", Labels: status},
		{Name: MetricCoolStatus, Help: "Indicates whether HVAC system is actively cooling", Labels: status},
		{Name: MetricDesiredCoolRange, Help: "Desired cool range", Labels: ranges},
		{Name: MetricDesiredHeatRange, Help: "Desired heat range", Labels: ranges},
		{Name: MetricTemperatureActual, Help: "Actual temperature", Labels: sensor},
		{Name: MetricHumidity, Help: "Humidity", Labels: sensor},
		{Name: MetricOccupancy, Help: "Detected occupancy", Labels: sensor},
	}
}
