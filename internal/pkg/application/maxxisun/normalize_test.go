package maxxisun

import (
	"encoding/json"
	"testing"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/matryer/is"
)

func TestNormalizeUnwrapsEnvelope(t *testing.T) {
	is := is.New(t)

	cfg, ok := Normalize(decode(t, configResponse), "ccu-4711", "")
	is.True(ok)

	is.Equal(cfg["maxSOC"], float64(95))
	is.Equal(cfg.DeviceID(), "ccu-4711")
	_, wrapped := cfg["data"]
	is.True(!wrapped)
}

func TestNormalizeKeepsFlatPayload(t *testing.T) {
	is := is.New(t)

	cfg, ok := Normalize(decode(t, `{"minSOC": 10, "deviceId": "from-payload"}`), "known", "fallback")
	is.True(ok)

	is.Equal(cfg.DeviceID(), "from-payload")
}

func TestNormalizeUsesFallbackWhenNoDeviceIDIsKnown(t *testing.T) {
	is := is.New(t)

	cfg, ok := Normalize(decode(t, `{"minSOC": 10}`), "", "fallback")
	is.True(ok)
	is.Equal(cfg.DeviceID(), "fallback")

	cfg, ok = Normalize(decode(t, `{"minSOC": 10, "deviceId": ""}`), "known", "fallback")
	is.True(ok)
	is.Equal(cfg.DeviceID(), "known")
}

func TestNormalizeDoesNotUnwrapNonObjectData(t *testing.T) {
	is := is.New(t)

	cfg, ok := Normalize(decode(t, `{"data": [1, 2], "minSOC": 5}`), "", "")
	is.True(ok)
	is.Equal(cfg["minSOC"], float64(5))
}

func TestNormalizeRejectsNonObjects(t *testing.T) {
	is := is.New(t)

	for _, body := range []string{`[]`, `"text"`, `42`, `null`} {
		_, ok := Normalize(decode(t, body), "known", "")
		is.True(!ok) // non object bodies are malformed
	}
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	is := is.New(t)

	raw := map[string]any{"minSOC": 10}
	_, ok := Normalize(raw, "known", "")
	is.True(ok)

	_, modified := raw[domain.KeyDeviceID]
	is.True(!modified)
}

func TestBuildUpdatePayloadDropsStaleFields(t *testing.T) {
	is := is.New(t)

	known := map[string]struct{}{"minSOC": {}, "maxSOC": {}}
	current := domain.Snapshot{"minSOC": 10, "staleField": 5}

	merged := BuildUpdatePayload(current, known, "maxSOC", 90, "")

	is.Equal(len(merged), 2)
	is.Equal(merged["minSOC"], 10)
	is.Equal(merged["maxSOC"], 90)
}

func TestBuildUpdatePayloadAttachesDeviceID(t *testing.T) {
	is := is.New(t)

	known := domain.ControlFieldKeys()

	merged := BuildUpdatePayload(domain.Snapshot{"deviceId": "from-config"}, known, domain.FieldMinSOC, 20, "last-known")
	is.Equal(merged.DeviceID(), "from-config")

	merged = BuildUpdatePayload(domain.Snapshot{"minSOC": 10}, known, domain.FieldMaxSOC, 80, "last-known")
	is.Equal(merged.DeviceID(), "last-known")
	is.Equal(merged["minSOC"], 10)
}

func TestBuildUpdatePayloadOnEmptyConfig(t *testing.T) {
	is := is.New(t)

	merged := BuildUpdatePayload(nil, domain.ControlFieldKeys(), domain.FieldBaseLoad, 150, "")
	is.Equal(len(merged), 1)
	is.Equal(merged[domain.FieldBaseLoad], 150)

	merged = BuildUpdatePayload(domain.Snapshot{}, domain.ControlFieldKeys(), domain.FieldBaseLoad, 150, "ccu")
	is.Equal(len(merged), 2)
}

func decode(t *testing.T, body string) any {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("bad test input: %s", err.Error())
	}
	return v
}
