package application

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/coordinator"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/fiware"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/lwm2m"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/maxxisun"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/metrics"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/sensors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
)

type IntegrationMaxxisun interface {
	Run(ctx context.Context)
	Close()

	Status() DeviceStatus
	Refresh(ctx context.Context) error
	SetConfigValue(ctx context.Context, field string, value int) (domain.Snapshot, error)
	SetConfigOption(ctx context.Context, field, option string) (domain.Snapshot, error)

	Collector() *metrics.Collector
}

type SensorState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Value     any    `json:"value,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Available bool   `json:"available"`
}

type ControlState struct {
	ID       string   `json:"id"`
	Field    string   `json:"field"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Value    any      `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Options  []string `json:"options,omitempty"`
	Min      *int     `json:"min,omitempty"`
	Max      *int     `json:"max,omitempty"`
	Writable bool     `json:"writable"`
}

type DeviceStatus struct {
	State               string               `json:"state"`
	LastUpdateSucceeded bool                 `json:"lastUpdateSucceeded"`
	LastUpdated         *time.Time           `json:"lastUpdated,omitempty"`
	LastError           string               `json:"lastError,omitempty"`
	Device              domain.DeviceContext `json:"device"`
	Telemetry           domain.Snapshot      `json:"telemetry"`
	Config              domain.Snapshot      `json:"config"`
	Sensors             []SensorState        `json:"sensors"`
	Controls            []ControlState       `json:"controls"`
}

type integrationMaxxisun struct {
	coordinator coordinator.Coordinator
	collector   *metrics.Collector
	log         zerolog.Logger
}

// New wires the api client, the coordinator and any configured publishers.
func New(ctx context.Context, cfg Config) IntegrationMaxxisun {
	api := maxxisun.New(
		cfg.BaseURL, cfg.Token,
		maxxisun.WithInsecureSkipVerify(cfg.IgnoreSSL),
		maxxisun.WithTimeout(cfg.RequestTimeout),
	)

	return newWithClient(ctx, cfg, api)
}

func newWithClient(ctx context.Context, cfg Config, api maxxisun.Client) *integrationMaxxisun {
	logger := logging.GetFromContext(ctx)

	opts := []coordinator.Option{coordinator.WithInterval(cfg.PollInterval)}

	if cfg.ContextBrokerURL != "" {
		cbClient := client.NewContextBrokerClient(cfg.ContextBrokerURL)
		opts = append(opts, coordinator.WithUpdateListener(contextBrokerPublisher(logger, cbClient)))
	}

	if cfg.LWM2MURL != "" {
		sender := lwm2m.NewSender(cfg.IgnoreSSL)
		opts = append(opts, coordinator.WithUpdateListener(lwm2mPublisher(logger, cfg.LWM2MURL, sender)))
	}

	c := coordinator.New(ctx, api, opts...)

	return &integrationMaxxisun{
		coordinator: c,
		collector:   metrics.NewCollector(c),
		log:         logger,
	}
}

// contextBrokerPublisher skips views without a device id, there is nothing to
// name the entity after.
func contextBrokerPublisher(logger zerolog.Logger, cbClient client.ContextBrokerClient) coordinator.UpdateListener {
	return func(ctx context.Context, v coordinator.View) {
		if v.DeviceID == "" {
			logger.Debug().Msg("no device id yet, not publishing to context broker")
			return
		}
		if err := fiware.CreateOrUpdateDevice(ctx, cbClient, v.DeviceID, v.Telemetry); err != nil {
			logger.Error().Err(err).Msg("failed to publish device to context broker")
		}
	}
}

func lwm2mPublisher(logger zerolog.Logger, url string, sender lwm2m.SenderFunc) coordinator.UpdateListener {
	return func(ctx context.Context, v coordinator.View) {
		if v.DeviceID == "" {
			logger.Debug().Msg("no device id yet, not publishing lwm2m objects")
			return
		}
		if err := lwm2m.CreateAndSendAsLWM2M(ctx, v.DeviceID, v.Telemetry, url, sender); err != nil {
			logger.Error().Err(err).Msg("failed to publish lwm2m objects")
		}
	}
}

func (i *integrationMaxxisun) Run(ctx context.Context) {
	i.coordinator.Run(ctx)
}

func (i *integrationMaxxisun) Close() {
	i.coordinator.Close()
}

func (i *integrationMaxxisun) Refresh(ctx context.Context) error {
	return i.coordinator.Refresh(ctx)
}

func (i *integrationMaxxisun) Collector() *metrics.Collector {
	return i.collector
}

func (i *integrationMaxxisun) SetConfigValue(ctx context.Context, field string, value int) (domain.Snapshot, error) {
	return i.coordinator.SetConfigField(ctx, field, value)
}

// SetConfigOption writes an enumerated config field using one of its labels.
func (i *integrationMaxxisun) SetConfigOption(ctx context.Context, field, option string) (domain.Snapshot, error) {
	f, ok := domain.LookupControlField(field)
	if !ok {
		return nil, fmt.Errorf("%s: %w", field, coordinator.ErrUnknownField)
	}

	value, ok := f.ValueFor(option)
	if !ok {
		i.log.Warn().Str("field", field).Str("option", option).Msg("invalid option")
		return nil, fmt.Errorf("%q for %s: %w", option, field, coordinator.ErrInvalidOption)
	}

	return i.coordinator.SetConfigField(ctx, field, value)
}

// Status evaluates every sensor and control against the latest snapshots.
func (i *integrationMaxxisun) Status() DeviceStatus {
	c := i.coordinator

	telemetry := c.Data()
	config := c.Config()
	available := c.LastUpdateSucceeded()
	device := domain.NewDeviceContext(c.DeviceID())

	status := DeviceStatus{
		State:               c.State().String(),
		LastUpdateSucceeded: available,
		Device:              device,
		Telemetry:           telemetry,
		Config:              config,
		Sensors:             []SensorState{},
		Controls:            []ControlState{},
	}

	if updated := c.LastUpdated(); !updated.IsZero() {
		status.LastUpdated = &updated
	}
	if err := c.LastError(); err != nil {
		status.LastError = err.Error()
	}

	for _, s := range sensors.Build(device, telemetry) {
		v, ok := s.Value(telemetry, config)
		status.Sensors = append(status.Sensors, SensorState{
			ID:        s.ID,
			Name:      s.Name,
			Value:     v,
			Unit:      s.Unit,
			Icon:      s.CurrentIcon(telemetry),
			Available: available && ok,
		})
	}

	for _, f := range domain.ControlFields() {
		if f.Kind == domain.ControlDiagnostic {
			continue
		}

		cs := ControlState{
			ID:       device.UniqueID(f.Key),
			Field:    f.Key,
			Name:     f.Name,
			Kind:     f.Kind.String(),
			Unit:     f.Unit,
			Options:  f.Labels(),
			Writable: f.Writable,
		}

		if f.Kind == domain.ControlNumber {
			lo, hi := f.Min, f.Max
			cs.Min, cs.Max = &lo, &hi
		}

		if f.Kind == domain.ControlSelect {
			if label, ok := sensors.SelectOption(config, f); ok {
				cs.Value = label
			}
		} else if v, ok := sensors.NumberValue(config, f.Key); ok {
			cs.Value = v
		}

		status.Controls = append(status.Controls, cs)
	}

	return status
}
