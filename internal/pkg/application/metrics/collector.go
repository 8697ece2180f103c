package metrics

import (
	"strconv"
	"time"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/sensors"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is the read side of the coordinator.
type Source interface {
	Data() domain.Snapshot
	Config() domain.Snapshot
	DeviceID() string
	LastUpdateSucceeded() bool
	LastUpdated() time.Time
}

// Collector implements prometheus.Collector on top of the latest coordinator
// snapshots. It never talks to the device api itself.
type Collector struct {
	source Source

	stateOfCharge   *prometheus.Desc
	powerOut        *prometheus.Desc
	powerGrid       *prometheus.Desc
	pvPower         *prometheus.Desc
	wifiStrength    *prometheus.Desc
	batteryPower    *prometheus.Desc
	totalCapacity   *prometheus.Desc
	batteryCapacity *prometheus.Desc
	chargeState     *prometheus.Desc
	configValue     *prometheus.Desc
	updateSuccess   *prometheus.Desc
	lastUpdate      *prometheus.Desc
}

func NewCollector(source Source) *Collector {
	device := []string{"device_id"}

	return &Collector{
		source: source,
		stateOfCharge: prometheus.NewDesc(
			"maxxisun_state_of_charge_percent",
			"Battery state of charge in percent",
			device, nil,
		),
		powerOut: prometheus.NewDesc(
			"maxxisun_power_out_watts",
			"Output power of the CCU in watts",
			device, nil,
		),
		powerGrid: prometheus.NewDesc(
			"maxxisun_grid_power_watts",
			"Power exchanged with the grid in watts",
			device, nil,
		),
		pvPower: prometheus.NewDesc(
			"maxxisun_pv_power_watts",
			"Total photovoltaic power in watts",
			device, nil,
		),
		wifiStrength: prometheus.NewDesc(
			"maxxisun_wifi_strength_dbm",
			"Wifi signal strength of the CCU",
			device, nil,
		),
		batteryPower: prometheus.NewDesc(
			"maxxisun_battery_power_watts",
			"Battery power in watts (positive=charging, negative=discharging)",
			device, nil,
		),
		totalCapacity: prometheus.NewDesc(
			"maxxisun_battery_capacity_total_wh",
			"Sum of all battery capacities in watt-hours",
			device, nil,
		),
		batteryCapacity: prometheus.NewDesc(
			"maxxisun_battery_capacity_wh",
			"Capacity of a single battery in watt-hours",
			[]string{"device_id", "battery"}, nil,
		),
		chargeState: prometheus.NewDesc(
			"maxxisun_charge_state",
			"Current charge state (1 for the active state)",
			[]string{"device_id", "state"}, nil,
		),
		configValue: prometheus.NewDesc(
			"maxxisun_config_value",
			"Numeric device configuration values",
			[]string{"device_id", "field"}, nil,
		),
		updateSuccess: prometheus.NewDesc(
			"maxxisun_update_success",
			"Whether the last update from the maxxisun api was successful",
			device, nil,
		),
		lastUpdate: prometheus.NewDesc(
			"maxxisun_last_update_timestamp_seconds",
			"Time of the last successful update",
			device, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateOfCharge
	ch <- c.powerOut
	ch <- c.powerGrid
	ch <- c.pvPower
	ch <- c.wifiStrength
	ch <- c.batteryPower
	ch <- c.totalCapacity
	ch <- c.batteryCapacity
	ch <- c.chargeState
	ch <- c.configValue
	ch <- c.updateSuccess
	ch <- c.lastUpdate
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	deviceID := c.source.DeviceID()

	success := 0.0
	if c.source.LastUpdateSucceeded() {
		success = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.updateSuccess, prometheus.GaugeValue, success, deviceID)

	if updated := c.source.LastUpdated(); !updated.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, float64(updated.Unix()), deviceID)
	}

	telemetry := c.source.Data()
	if telemetry == nil {
		return
	}

	gauge := func(desc *prometheus.Desc, key string) {
		v, ok := sensors.Field(telemetry, key)
		if !ok {
			return
		}
		if f, ok := sensors.ToFloat(v); ok {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, f, deviceID)
		}
	}

	gauge(c.stateOfCharge, domain.KeySOC)
	gauge(c.powerOut, domain.KeyPowerOut)
	gauge(c.powerGrid, domain.KeyPowerGrid)
	gauge(c.pvPower, domain.KeyPVPowerTotal)
	gauge(c.wifiStrength, domain.KeyWifiStrength)

	ch <- prometheus.MustNewConstMetric(c.batteryPower, prometheus.GaugeValue, float64(sensors.PowerBattery(telemetry)), deviceID)
	ch <- prometheus.MustNewConstMetric(c.totalCapacity, prometheus.GaugeValue, float64(sensors.BatteryCapacity(telemetry)), deviceID)

	for i := range telemetry.Array(domain.KeyBatteries) {
		v, ok := sensors.ArrayField(telemetry, domain.KeyBatteries, i, domain.KeyBatteryCap)
		if !ok {
			continue
		}
		if f, ok := sensors.ToFloat(v); ok {
			ch <- prometheus.MustNewConstMetric(c.batteryCapacity, prometheus.GaugeValue, f, deviceID, strconv.Itoa(i+1))
		}
	}

	current := sensors.BatteryCharging(telemetry)
	for _, state := range []sensors.ChargeState{sensors.Idle, sensors.Charging, sensors.Discharging} {
		active := 0.0
		if state == current {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.chargeState, prometheus.GaugeValue, active, deviceID, string(state))
	}

	config := c.source.Config()
	for _, f := range domain.ControlFields() {
		if f.Key == domain.FieldMeterIP {
			continue
		}
		if v, ok := sensors.NumberValue(config, f.Key); ok {
			ch <- prometheus.MustNewConstMetric(c.configValue, prometheus.GaugeValue, float64(v), deviceID, f.Key)
		}
	}
}
