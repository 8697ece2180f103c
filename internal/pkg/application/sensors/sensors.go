package sensors

import (
	"fmt"

	"github.com/diwise/integration-maxxisun/domain"
)

type Kind int

const (
	KindField Kind = iota
	KindArrayField
	KindCalculated
	KindConfig
)

type Calculation int

const (
	CalcPowerBattery Calculation = iota
	CalcBatteryCharging
	CalcBatteryCapacity
)

// Sensor describes one entity value derived from the coordinator snapshots.
// Which fields are used depends on Kind.
type Sensor struct {
	ID          string
	Key         string
	Name        string
	Unit        string
	Icon        string
	StateClass  string
	DeviceClass string
	Kind        Kind

	ForceInt bool

	ArrayKey string
	Index    int
	ValueKey string

	Calc Calculation
}

var fieldSensors = []Sensor{
	{Key: domain.KeySOC, Name: "State of Charge", Unit: "%", Icon: "mdi:battery", StateClass: "measurement", DeviceClass: "battery"},
	{Key: domain.KeyWifiStrength, Name: "WiFi Signal", Unit: "dBm", Icon: "mdi:wifi", StateClass: "measurement", DeviceClass: "signal_strength"},
	{Key: domain.KeyPowerOut, Name: "Power Out", Unit: "W", Icon: "mdi:power-plug-battery-outline", StateClass: "measurement", DeviceClass: "power", ForceInt: true},
	{Key: domain.KeyPowerGrid, Name: "Power from Grid", Unit: "W", Icon: "mdi:transmission-tower-export", StateClass: "measurement", DeviceClass: "power", ForceInt: true},
	{Key: domain.KeyPVPowerTotal, Name: "PV Power Total", Unit: "W", Icon: "mdi:solar-power-variant", StateClass: "measurement", DeviceClass: "power"},
	{Key: domain.KeyFirmware, Name: "Firmware Version", Icon: "mdi:information-outline"},
}

var calculatedSensors = []Sensor{
	{Key: "BatteryCharging", Name: "Battery Charging", Icon: "mdi:battery-outline", Calc: CalcBatteryCharging},
	{Key: "PowerBattery", Name: "Power Battery", Unit: "W", Icon: "mdi:battery-outline", StateClass: "measurement", DeviceClass: "power", Calc: CalcPowerBattery},
	{Key: "BatteryCapacity", Name: "Battery Capacity Total", Unit: "Wh", Icon: "mdi:battery-outline", Calc: CalcBatteryCapacity},
}

// Build returns every sensor for the device. Array sensors are created for
// the converters and batteries present in the telemetry snapshot.
func Build(device domain.DeviceContext, telemetry domain.Snapshot) []Sensor {
	result := []Sensor{}

	for _, s := range fieldSensors {
		s.Kind = KindField
		result = append(result, s)
	}

	for i := range telemetry.Array(domain.KeyConverters) {
		result = append(result, Sensor{
			Name:     fmt.Sprintf("Converter %d Version", i+1),
			Icon:     "mdi:information-outline",
			Kind:     KindArrayField,
			ArrayKey: domain.KeyConverters,
			Index:    i,
			ValueKey: domain.KeyConverterVer,
		})
	}

	for i := range telemetry.Array(domain.KeyBatteries) {
		result = append(result, Sensor{
			Name:     fmt.Sprintf("Battery %d Capacity", i+1),
			Unit:     "Wh",
			Icon:     "mdi:battery",
			Kind:     KindArrayField,
			ArrayKey: domain.KeyBatteries,
			Index:    i,
			ValueKey: domain.KeyBatteryCap,
		})
	}

	for _, s := range calculatedSensors {
		s.Kind = KindCalculated
		result = append(result, s)
	}

	for _, f := range domain.ControlFields() {
		if f.Kind != domain.ControlDiagnostic {
			continue
		}
		result = append(result, Sensor{
			Key:  f.Key,
			Name: f.Name,
			Unit: f.Unit,
			Icon: f.Icon,
			Kind: KindConfig,
		})
	}

	for i := range result {
		if result[i].Kind == KindArrayField {
			result[i].Key = fmt.Sprintf("%s_%d_%s", result[i].ArrayKey, result[i].Index, result[i].ValueKey)
		}
		result[i].ID = device.UniqueID(result[i].Key)
	}

	return result
}

// Value evaluates the sensor. It never fails, a missing or malformed input
// simply has no value.
func (s Sensor) Value(telemetry, config domain.Snapshot) (any, bool) {
	switch s.Kind {
	case KindField:
		if telemetry == nil {
			return nil, false
		}
		v, ok := Field(telemetry, s.Key)
		if !ok || !s.ForceInt {
			return v, ok
		}
		return ToInt(v)
	case KindArrayField:
		return ArrayField(telemetry, s.ArrayKey, s.Index, s.ValueKey)
	case KindCalculated:
		if telemetry == nil {
			return nil, false
		}
		switch s.Calc {
		case CalcPowerBattery:
			return PowerBattery(telemetry), true
		case CalcBatteryCharging:
			return BatteryCharging(telemetry), true
		case CalcBatteryCapacity:
			return BatteryCapacity(telemetry), true
		}
	case KindConfig:
		return ConfigValue(config, s.Key)
	}

	return nil, false
}

func (s Sensor) CurrentIcon(telemetry domain.Snapshot) string {
	switch s.Kind {
	case KindField:
		if s.Key == domain.KeySOC {
			return SOCIcon(telemetry)
		}
	case KindArrayField:
		if s.ValueKey == domain.KeyBatteryCap {
			// per battery icons treat an unreadable SOC as empty
			if icon := SOCIcon(telemetry); icon != IconBatteryUnknown {
				return icon
			}
			return IconBatteryEmpty
		}
	case KindCalculated:
		if s.Calc == CalcBatteryCapacity {
			return SOCIcon(telemetry)
		}
		return ChargeIcon(telemetry)
	}

	return s.Icon
}
