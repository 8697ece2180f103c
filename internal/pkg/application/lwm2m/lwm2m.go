package lwm2m

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/sensors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/farshidtz/senml/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("integration-maxxisun/lwm2m")

const (
	BatteryURN string = "urn:oma:lwm2m:ext:3411"
	PowerURN   string = "urn:oma:lwm2m:ext:3305"
)

// CreateAndSendAsLWM2M converts telemetry into SenML packs and hands each pack
// to sender. All send errors are collected and returned together.
func CreateAndSendAsLWM2M(ctx context.Context, deviceID string, telemetry domain.Snapshot, url string, sender SenderFunc) error {
	logger := logging.GetFromContext(ctx)
	log := logger.With().Str("device_id", deviceID).Logger()

	timestamp, ok := sensors.LastUpdate(telemetry)
	if !ok {
		timestamp = time.Now().UTC()
	}

	var errs []error

	for _, p := range createPacks(deviceID, telemetry, timestamp) {
		err := sender(ctx, url, p)
		if err != nil {
			log.Error().Err(err).Str("object", p[0].BaseName).Msg("could not send pack")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func createPacks(deviceID string, telemetry domain.Snapshot, timestamp time.Time) []senml.Pack {
	packs := []senml.Pack{}

	battery := newPack(BatteryURN, deviceID, timestamp)
	if soc, ok := sensors.Field(telemetry, domain.KeySOC); ok {
		if v, ok := sensors.ToFloat(soc); ok {
			battery = append(battery, newRec("1", v, "%", timestamp))
		}
	}
	if telemetry.Array(domain.KeyBatteries) != nil {
		battery = append(battery, newRec("2", float64(sensors.BatteryCapacity(telemetry)), "Wh", timestamp))
	}
	if len(battery) > 1 {
		packs = append(packs, battery)
	}

	pv := newPack(PowerURN, deviceID+":pv", timestamp)
	if v, ok := sensors.Field(telemetry, domain.KeyPVPowerTotal); ok {
		if f, ok := sensors.ToFloat(v); ok {
			pv = append(pv, newRec("5700", f, "W", timestamp))
			packs = append(packs, pv)
		}
	}

	batteryPower := newPack(PowerURN, deviceID+":battery", timestamp)
	batteryPower = append(batteryPower, newRec("5700", float64(sensors.PowerBattery(telemetry)), "W", timestamp))
	packs = append(packs, batteryPower)

	return packs
}

func newPack(baseName, id string, bt time.Time) senml.Pack {
	return senml.Pack{
		senml.Record{
			BaseName:    baseName,
			BaseTime:    float64(bt.Unix()),
			Name:        "0",
			StringValue: id,
		},
	}
}

func newRec(name string, v float64, u string, t time.Time) senml.Record {
	return senml.Record{
		Name:  name,
		Value: &v,
		Time:  float64(t.Unix()),
		Unit:  u,
	}
}

type SenderFunc = func(context.Context, string, senml.Pack) error

const sendTimeout = 10 * time.Second

// NewSender returns a SenderFunc posting packs as application/senml+json.
func NewSender(tlsSkipVerify bool) SenderFunc {
	var httpClient http.Client

	if tlsSkipVerify {
		customTransport := http.DefaultTransport.(*http.Transport).Clone()
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		httpClient = http.Client{
			Transport: otelhttp.NewTransport(customTransport),
			Timeout:   sendTimeout,
		}
	} else {
		httpClient = http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   sendTimeout,
		}
	}

	return func(ctx context.Context, url string, pack senml.Pack) error {
		var err error

		ctx, span := tracer.Start(ctx, "send-object")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		var b []byte
		b, err = json.Marshal(pack)
		if err != nil {
			return err
		}

		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(b))
		if err != nil {
			return err
		}

		req.Header.Add("Content-Type", "application/senml+json")

		var resp *http.Response
		resp, err = httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			err = fmt.Errorf("unexpected response code %d", resp.StatusCode)
		}

		return err
	}
}
