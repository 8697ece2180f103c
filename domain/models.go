package domain

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Snapshot is a flat JSON object as returned by the Maxxisun API, after any
// envelope has been removed.
type Snapshot map[string]any

const (
	KeyDeviceID     string = "deviceId"
	KeyDate         string = "date"
	KeySOC          string = "SOC"
	KeyWifiStrength string = "wifiStrength"
	KeyPowerOut     string = "Pccu"
	KeyPowerGrid    string = "Pr"
	KeyPVPowerTotal string = "PV_power_total"
	KeyFirmware     string = "firmwareVersion"
	KeyConverters   string = "convertersInfo"
	KeyBatteries    string = "batteriesInfo"
	KeyConverterVer string = "version"
	KeyBatteryCap   string = "batteryCapacity"
)

// DeviceID returns the device identifier held by the snapshot, if any.
func (s Snapshot) DeviceID() string {
	if s == nil {
		return ""
	}
	switch id := s[KeyDeviceID].(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return cast.ToString(id)
	}
}

// Clone returns a shallow copy of the snapshot. Nested arrays are shared.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Array returns the elements of an array valued key that are JSON objects.
// Elements of any other shape are returned as nil so that indexes are kept.
func (s Snapshot) Array(key string) []map[string]any {
	raw, ok := s[key].([]any)
	if !ok {
		return nil
	}

	items := make([]map[string]any, len(raw))
	for i, v := range raw {
		if m, ok := v.(map[string]any); ok {
			items[i] = m
		}
	}

	return items
}

type DeviceContext struct {
	DeviceID     string `json:"deviceId"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

func NewDeviceContext(deviceID string) DeviceContext {
	if deviceID == "" {
		deviceID = "unknown"
	}

	return DeviceContext{
		DeviceID:     deviceID,
		Name:         "Maxxisun " + deviceID,
		Manufacturer: "Maxxisun",
		Model:        strings.ToUpper(deviceID),
	}
}

// UniqueID returns a stable identifier for an entity belonging to this device.
func (d DeviceContext) UniqueID(key string) string {
	return fmt.Sprintf("%s_%s", d.DeviceID, key)
}
