package sensors

import (
	"math"
	"strings"
	"time"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/spf13/cast"
)

type ChargeState string

const (
	Idle        ChargeState = "Idle"
	Charging    ChargeState = "Charging"
	Discharging ChargeState = "Discharging"
)

// ToFloat converts a decoded json value to a float. Missing values, values
// that do not parse and non finite numbers are reported as not ok.
func ToFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}

	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

// ToInt is the forced integer coercion used by power sensors. Halves are
// rounded to the nearest even integer. Values that do not fit an int are
// reported as not ok.
func ToInt(v any) (int, bool) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, false
	}

	r := math.RoundToEven(f)
	if r >= maxInt || r < minInt {
		return 0, false
	}

	return int(r), true
}

func floatOrZero(v any) float64 {
	f, _ := ToFloat(v)
	return f
}

const (
	maxInt = float64(math.MaxInt)
	minInt = float64(math.MinInt)
)

// round saturates at the int bounds.
func round(f float64) int {
	r := math.RoundToEven(f)
	if r >= maxInt {
		return math.MaxInt
	}
	if r <= minInt {
		return math.MinInt
	}
	return int(r)
}

// Field returns the raw value stored under key.
func Field(s domain.Snapshot, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ArrayField returns s[arrayKey][index][valueKey]. An index outside the array
// is not an error, it just has no value.
func ArrayField(s domain.Snapshot, arrayKey string, index int, valueKey string) (any, bool) {
	items := s.Array(arrayKey)
	if index < 0 || index >= len(items) || items[index] == nil {
		return nil, false
	}

	v, ok := items[index][valueKey]
	if !ok || v == nil {
		return nil, false
	}

	return v, true
}

func powerBalance(s domain.Snapshot) float64 {
	return floatOrZero(s[domain.KeyPVPowerTotal]) - floatOrZero(s[domain.KeyPowerOut])
}

// PowerBattery is the power flowing into (positive) or out of (negative) the
// batteries, computed as PV_power_total - Pccu.
func PowerBattery(s domain.Snapshot) int {
	return round(powerBalance(s))
}

func BatteryCharging(s domain.Snapshot) ChargeState {
	d := math.RoundToEven(powerBalance(s))
	if d == 0 {
		return Idle
	} else if d > 0 {
		return Charging
	}
	return Discharging
}

// BatteryCapacity sums batteryCapacity over all entries in batteriesInfo.
func BatteryCapacity(s domain.Snapshot) int {
	total := 0.0
	for _, b := range s.Array(domain.KeyBatteries) {
		if b == nil {
			continue
		}
		total += floatOrZero(b[domain.KeyBatteryCap])
	}
	return round(total)
}

const (
	IconBatteryEmpty     string = "mdi:battery-outline"
	IconBatteryFull      string = "mdi:battery"
	IconBatteryUnknown   string = "mdi:battery-remove"
	IconBatteryCharge    string = "mdi:battery-arrow-up-outline"
	IconBatteryDischarge string = "mdi:battery-arrow-down-outline"
)

// SOCIcon bands the state of charge to the nearest ten percent.
func SOCIcon(s domain.Snapshot) string {
	v, ok := Field(s, domain.KeySOC)
	if !ok {
		return IconBatteryEmpty
	}

	soc, ok := ToFloat(v)
	if !ok {
		return IconBatteryUnknown
	}

	d := round(soc/10) * 10
	if d <= 0 {
		return IconBatteryEmpty
	} else if d >= 100 {
		return IconBatteryFull
	}

	return "mdi:battery-" + cast.ToString(d)
}

func ChargeIcon(s domain.Snapshot) string {
	switch BatteryCharging(s) {
	case Charging:
		return IconBatteryCharge
	case Discharging:
		return IconBatteryDischarge
	default:
		return IconBatteryEmpty
	}
}

// LastUpdate returns the device timestamp carried in the date field (unix ms).
func LastUpdate(s domain.Snapshot) (time.Time, bool) {
	v, ok := Field(s, domain.KeyDate)
	if !ok {
		return time.Time{}, false
	}

	ms, ok := ToFloat(v)
	if !ok || ms <= 0 {
		return time.Time{}, false
	}

	return time.UnixMilli(int64(ms)).UTC(), true
}

// NumberValue returns a config field coerced to an integer.
func NumberValue(cfg domain.Snapshot, field string) (int, bool) {
	v, ok := Field(cfg, field)
	if !ok {
		return 0, false
	}
	return ToInt(v)
}

// SelectOption maps the stored integer of an enumerated config field to its label.
func SelectOption(cfg domain.Snapshot, field domain.ControlField) (string, bool) {
	v, ok := Field(cfg, field.Key)
	if !ok {
		return "", false
	}

	f, ok := ToFloat(v)
	if !ok || f >= maxInt || f < minInt {
		return "", false
	}

	return field.LabelFor(int(f))
}

// ConfigValue returns a raw config field, accepting the alternate spelling of
// the meter address.
func ConfigValue(cfg domain.Snapshot, field string) (any, bool) {
	v, ok := Field(cfg, field)
	if !ok && field == domain.FieldMeterIP {
		return Field(cfg, domain.FieldMeterIPAlt)
	}
	return v, ok
}
