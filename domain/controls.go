package domain

type ControlKind int

const (
	ControlNumber ControlKind = iota
	ControlSelect
	ControlDiagnostic
)

func (k ControlKind) String() string {
	switch k {
	case ControlNumber:
		return "number"
	case ControlSelect:
		return "select"
	case ControlDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

type Option struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// ControlField describes a field of the device configuration document.
type ControlField struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Unit     string      `json:"unit,omitempty"`
	Icon     string      `json:"icon"`
	Kind     ControlKind `json:"-"`
	Writable bool        `json:"writable"`
	Min      int         `json:"min,omitempty"`
	Max      int         `json:"max,omitempty"`
	Options  []Option    `json:"options,omitempty"`
}

// InRange reports whether value is accepted by a number field. Fields
// without a range accept any value.
func (f ControlField) InRange(value int) bool {
	if f.Min == 0 && f.Max == 0 {
		return true
	}
	return value >= f.Min && value <= f.Max
}

func (f ControlField) LabelFor(value int) (string, bool) {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label, true
		}
	}
	return "", false
}

func (f ControlField) ValueFor(label string) (int, bool) {
	for _, o := range f.Options {
		if o.Label == label {
			return o.Value, true
		}
	}
	return 0, false
}

func (f ControlField) Labels() []string {
	labels := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		labels = append(labels, o.Label)
	}
	return labels
}

const (
	FieldMinSOC             string = "minSOC"
	FieldMaxSOC             string = "maxSOC"
	FieldMaxOutputPower     string = "maxOutputPower"
	FieldBaseLoad           string = "baseLoad"
	FieldResponseThreshold  string = "responseThreshold"
	FieldOfflineOutputPower string = "offlineOutputPower"
	FieldPowerMeterType     string = "powerMeterType"
	FieldCCUSpeed           string = "ccuSpeed"
	FieldDCAlgorithm        string = "dcAlgorithm"
	FieldNumberOfBatteries  string = "numberOfBatteries"
	FieldMeterIP            string = "meterIp"

	// the config endpoint has been seen using both spellings
	FieldMeterIPAlt string = "meterIP"
)

// bounds accepted by the device app for every number field
const (
	NumberMin int = 0
	NumberMax int = 1000
)

var controlFields = []ControlField{
	{Key: FieldMinSOC, Name: "Minimum SOC", Unit: "%", Icon: "mdi:battery-arrow-down", Kind: ControlNumber, Writable: true, Min: NumberMin, Max: NumberMax},
	{Key: FieldMaxSOC, Name: "Maximum SOC", Unit: "%", Icon: "mdi:battery-arrow-up", Kind: ControlNumber, Writable: true, Min: NumberMin, Max: NumberMax},
	{Key: FieldMaxOutputPower, Name: "Maximum Output Power", Unit: "W", Icon: "mdi:flash", Kind: ControlNumber, Writable: true, Min: NumberMin, Max: NumberMax},
	{Key: FieldBaseLoad, Name: "Base Load", Unit: "W", Icon: "mdi:home-lightning-bolt", Kind: ControlNumber, Writable: true, Min: NumberMin, Max: NumberMax},
	{Key: FieldResponseThreshold, Name: "Response Threshold", Unit: "W", Icon: "mdi:arrow-collapse-vertical", Kind: ControlNumber, Writable: true, Min: NumberMin, Max: NumberMax},
	{Key: FieldOfflineOutputPower, Name: "Offline Output Power", Unit: "W", Icon: "mdi:power-plug-off", Kind: ControlNumber, Writable: true, Min: NumberMin, Max: NumberMax},
	{
		Key: FieldPowerMeterType, Name: "Power Meter Type", Icon: "mdi:meter-electric", Kind: ControlSelect, Writable: true,
		Options: []Option{
			{Label: "Shelly 3EM", Value: 1},
			{Label: "Shelly Pro 3EM", Value: 2},
			{Label: "Shelly EM", Value: 3},
			{Label: "Tasmota", Value: 4},
		},
	},
	{
		Key: FieldCCUSpeed, Name: "CCU Speed", Icon: "mdi:speedometer", Kind: ControlSelect, Writable: true,
		Options: []Option{
			{Label: "Slow", Value: 0},
			{Label: "Normal", Value: 1},
			{Label: "Fast", Value: 2},
		},
	},
	{
		Key: FieldDCAlgorithm, Name: "DC Algorithm", Icon: "mdi:function-variant", Kind: ControlSelect, Writable: true,
		Options: []Option{
			{Label: "Standard", Value: 1},
			{Label: "Forced", Value: 2},
		},
	},
	{Key: FieldNumberOfBatteries, Name: "Number of Batteries", Icon: "mdi:car-battery", Kind: ControlDiagnostic},
	{Key: FieldMeterIP, Name: "Meter IP", Icon: "mdi:ip-network", Kind: ControlDiagnostic},
}

// ControlFields returns the descriptors of all known configuration fields, in
// presentation order.
func ControlFields() []ControlField {
	fields := make([]ControlField, len(controlFields))
	copy(fields, controlFields)
	return fields
}

func LookupControlField(key string) (ControlField, bool) {
	for _, f := range controlFields {
		if f.Key == key {
			return f, true
		}
	}
	return ControlField{}, false
}

// ControlFieldKeys returns the set of keys that may be written back to the
// config endpoint.
func ControlFieldKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(controlFields))
	for _, f := range controlFields {
		keys[f.Key] = struct{}{}
	}
	return keys
}
