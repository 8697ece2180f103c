package sensors

import (
	"testing"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/matryer/is"
)

func TestBuildCreatesArraySensorsPerElement(t *testing.T) {
	is := is.New(t)

	telemetry := snapshot(t, telemetryJSON)
	all := Build(domain.NewDeviceContext("ccu-4711"), telemetry)

	byID := map[string]Sensor{}
	for _, s := range all {
		byID[s.ID] = s
	}

	// 6 fields, 2 converters, 3 batteries, 3 calculated, 2 diagnostic
	is.Equal(len(all), 16)

	bat, ok := byID["ccu-4711_batteriesInfo_2_batteryCapacity"]
	is.True(ok)
	is.Equal(bat.Name, "Battery 3 Capacity")
	is.Equal(bat.Kind, KindArrayField)

	_, ok = byID["ccu-4711_convertersInfo_1_version"]
	is.True(ok)

	_, ok = byID["ccu-4711_meterIp"]
	is.True(ok)
}

func TestSensorValues(t *testing.T) {
	is := is.New(t)

	telemetry := snapshot(t, telemetryJSON)
	config := snapshot(t, `{"numberOfBatteries": 3, "meterIp": "192.168.1.20"}`)

	values := map[string]any{}
	for _, s := range Build(domain.NewDeviceContext("ccu-4711"), telemetry) {
		if v, ok := s.Value(telemetry, config); ok {
			values[s.Key] = v
		}
	}

	is.Equal(values["SOC"], float64(45))
	is.Equal(values["Pccu"], 1200)
	is.Equal(values["Pr"], -15)
	is.Equal(values["firmwareVersion"], "1.2.3")
	is.Equal(values["PowerBattery"], 300)
	is.Equal(values["BatteryCharging"], Charging)
	is.Equal(values["BatteryCapacity"], 6720)
	is.Equal(values["convertersInfo_0_version"], "A1")
	is.Equal(values["batteriesInfo_1_batteryCapacity"], float64(2240))
	is.Equal(values["meterIp"], "192.168.1.20")

	_, hasWifi := values["wifiStrength"]
	is.True(!hasWifi) // wifiStrength is missing from the telemetry
}

func TestSensorsHaveNoValueBeforeFirstUpdate(t *testing.T) {
	is := is.New(t)

	for _, s := range Build(domain.NewDeviceContext(""), nil) {
		_, ok := s.Value(nil, nil)
		is.True(!ok)
	}
}

func TestArraySensorLosesValueWhenArrayShrinks(t *testing.T) {
	is := is.New(t)

	all := Build(domain.NewDeviceContext("ccu-4711"), snapshot(t, telemetryJSON))
	shrunk := snapshot(t, `{"batteriesInfo": [{"batteryCapacity": 100}]}`)

	for _, s := range all {
		if s.Key == "batteriesInfo_2_batteryCapacity" {
			_, ok := s.Value(shrunk, nil)
			is.True(!ok)
		}
	}
}

func TestSensorIcons(t *testing.T) {
	is := is.New(t)

	telemetry := snapshot(t, telemetryJSON)

	for _, s := range Build(domain.NewDeviceContext("ccu-4711"), telemetry) {
		switch s.Key {
		case "SOC", "BatteryCapacity", "batteriesInfo_0_batteryCapacity":
			is.Equal(s.CurrentIcon(telemetry), "mdi:battery-40")
		case "PowerBattery", "BatteryCharging":
			is.Equal(s.CurrentIcon(telemetry), IconBatteryCharge)
		case "wifiStrength":
			is.Equal(s.CurrentIcon(telemetry), "mdi:wifi")
		}
	}
}

func TestBatteryArrayIconWithUnreadableSOC(t *testing.T) {
	is := is.New(t)

	telemetry := snapshot(t, `{"SOC": "n/a", "batteriesInfo": [{"batteryCapacity": 2240}]}`)

	for _, s := range Build(domain.NewDeviceContext("ccu-4711"), telemetry) {
		switch s.Key {
		case "batteriesInfo_0_batteryCapacity":
			is.Equal(s.CurrentIcon(telemetry), IconBatteryEmpty)
		case "SOC", "BatteryCapacity":
			is.Equal(s.CurrentIcon(telemetry), IconBatteryUnknown)
		}
	}
}

const telemetryJSON string = `{
	"deviceId": "ccu-4711",
	"date": 1718000000000,
	"SOC": 45,
	"Pccu": 1200.4,
	"Pr": -15.2,
	"PV_power_total": 1500.4,
	"firmwareVersion": "1.2.3",
	"convertersInfo": [{"version": "A1"}, {"version": "A2"}],
	"batteriesInfo": [{"batteryCapacity": 2240}, {"batteryCapacity": 2240}, {"batteryCapacity": 2240}]
}`
