package maxxisun

import (
	"github.com/diwise/integration-maxxisun/domain"
)

const envelopeKey string = "data"

// Normalize turns a decoded response body into a flat snapshot. Bodies wrapped
// as {"data": {...}} are unwrapped. A missing deviceId is filled in from
// knownDeviceID first and fallbackDeviceID second. The boolean result is false
// when the body is not a json object.
func Normalize(raw any, knownDeviceID, fallbackDeviceID string) (domain.Snapshot, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}

	if inner, ok := obj[envelopeKey].(map[string]any); ok {
		obj = inner
	}

	s := domain.Snapshot(obj).Clone()

	if s.DeviceID() == "" {
		if knownDeviceID != "" {
			s[domain.KeyDeviceID] = knownDeviceID
		} else if fallbackDeviceID != "" {
			s[domain.KeyDeviceID] = fallbackDeviceID
		}
	}

	return s, true
}

// BuildUpdatePayload creates the full config document to PUT when a single
// field changes. Keys of current that are not in known are dropped, so stale
// fields are never sent back to the device.
func BuildUpdatePayload(current domain.Snapshot, known map[string]struct{}, field string, value any, lastDeviceID string) domain.Snapshot {
	merged := domain.Snapshot{}

	for k, v := range current {
		if _, ok := known[k]; ok {
			merged[k] = v
		}
	}

	merged[field] = value

	deviceID := current.DeviceID()
	if deviceID == "" {
		deviceID = lastDeviceID
	}
	if deviceID != "" {
		merged[domain.KeyDeviceID] = deviceID
	}

	return merged
}
