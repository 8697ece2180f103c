package fiware

import (
	"context"
	"errors"
	"time"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	ngsierrors "github.com/diwise/context-broker/pkg/ngsild/errors"
	"github.com/diwise/context-broker/pkg/ngsild/types"
	"github.com/diwise/context-broker/pkg/ngsild/types/entities"
	. "github.com/diwise/context-broker/pkg/ngsild/types/entities/decorators"
	"github.com/diwise/context-broker/pkg/ngsild/types/properties"
	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/sensors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("integration-maxxisun/fiware")

const (
	DeviceIDPrefix string = "urn:ngsi-ld:Device:maxxisun:"
	DeviceTypeName string = "Device"
)

func EntityID(deviceID string) string {
	return DeviceIDPrefix + deviceID
}

// CreateOrUpdateDevice merges the derived values into the device entity, or
// creates the entity if the broker does not know it yet.
func CreateOrUpdateDevice(ctx context.Context, cbClient client.ContextBrokerClient, deviceID string, telemetry domain.Snapshot) error {
	var err error

	ctx, span := tracer.Start(ctx, "create-or-update-device")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

	headers := map[string][]string{"Content-Type": {"application/ld+json"}}

	decorators := append([]entities.EntityDecoratorFunc{entities.DefaultContext()}, createDecorators(telemetry)...)

	entityID := EntityID(deviceID)

	var fragment types.EntityFragment
	fragment, err = entities.NewFragment(decorators...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create entity fragment")
		return err
	}

	_, err = cbClient.MergeEntity(ctx, entityID, fragment, headers)
	if err == nil {
		logger.Debug().Msgf("updated entity %s", entityID)
		return nil
	}

	if !errors.Is(err, ngsierrors.ErrNotFound) {
		logger.Error().Err(err).Msg("failed to merge entity")
		return err
	}

	var entity types.Entity
	entity, err = entities.New(entityID, DeviceTypeName, decorators...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create new entity")
		return err
	}

	_, err = cbClient.CreateEntity(ctx, entity, headers)
	if err != nil {
		logger.Error().Err(err).Msg("failed to post entity to context broker")
		return err
	}

	logger.Info().Msgf("created entity %s", entityID)

	return nil
}

func createDecorators(telemetry domain.Snapshot) []entities.EntityDecoratorFunc {
	observed, ok := sensors.LastUpdate(telemetry)
	if !ok {
		observed = time.Now().UTC()
	}
	timestamp := observed.Format(time.RFC3339)

	decorators := []entities.EntityDecoratorFunc{
		DateTime(properties.DateObserved, timestamp),
	}

	for _, p := range numericProperties {
		v, ok := sensors.Field(telemetry, p.key)
		if !ok {
			continue
		}
		if f, ok := sensors.ToFloat(v); ok {
			decorators = append(decorators, Number(p.name, f, properties.UnitCode(p.unitCode), properties.ObservedAt(timestamp)))
		}
	}

	decorators = append(decorators,
		Number("powerBattery", float64(sensors.PowerBattery(telemetry)), properties.UnitCode("WTT"), properties.ObservedAt(timestamp)),
		Text("chargeState", string(sensors.BatteryCharging(telemetry))),
	)

	if telemetry.Array(domain.KeyBatteries) != nil {
		decorators = append(decorators,
			Number("batteryCapacity", float64(sensors.BatteryCapacity(telemetry)), properties.UnitCode("WHR"), properties.ObservedAt(timestamp)),
		)
	}

	if v, ok := sensors.Field(telemetry, domain.KeyFirmware); ok {
		if s, ok := v.(string); ok {
			decorators = append(decorators, Text("firmwareVersion", s))
		}
	}

	return decorators
}

type numericProperty struct {
	key      string
	name     string
	unitCode string
}

var numericProperties = []numericProperty{
	{key: domain.KeySOC, name: "batteryLevel", unitCode: "P1"},
	{key: domain.KeyPVPowerTotal, name: "pvPower", unitCode: "WTT"},
	{key: domain.KeyPowerOut, name: "powerOut", unitCode: "WTT"},
	{key: domain.KeyPowerGrid, name: "gridPower", unitCode: "WTT"},
}
