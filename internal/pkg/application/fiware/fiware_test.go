package fiware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	"github.com/diwise/integration-maxxisun/domain"
	"github.com/matryer/is"
)

func TestThatExistingDeviceIsMerged(t *testing.T) {
	is := is.New(t)

	broker := newBrokerFake(http.StatusNoContent)
	defer broker.Close()

	err := CreateOrUpdateDevice(context.Background(), client.NewContextBrokerClient(broker.URL), "ccu-4711", telemetry())
	is.NoErr(err)

	is.Equal(broker.methods(), []string{http.MethodPatch})
	is.True(strings.Contains(broker.lastBody(), "batteryLevel"))
	is.True(strings.Contains(broker.lastBody(), "Charging"))
}

func TestThatUnknownDeviceIsCreated(t *testing.T) {
	is := is.New(t)

	broker := newBrokerFake(http.StatusNotFound)
	defer broker.Close()

	err := CreateOrUpdateDevice(context.Background(), client.NewContextBrokerClient(broker.URL), "ccu-4711", telemetry())
	is.NoErr(err)

	is.Equal(broker.methods(), []string{http.MethodPatch, http.MethodPost})
	is.True(strings.Contains(broker.lastBody(), EntityID("ccu-4711")))
}

func TestEntityID(t *testing.T) {
	is := is.New(t)
	is.Equal(EntityID("ccu-4711"), "urn:ngsi-ld:Device:maxxisun:ccu-4711")
}

type brokerFake struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []string
	bodies []string
}

// newBrokerFake answers merges with mergeStatus and accepts every create.
func newBrokerFake(mergeStatus int) *brokerFake {
	b := &brokerFake{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.calls = append(b.calls, r.Method)
		b.bodies = append(b.bodies, string(body))
		b.mu.Unlock()

		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(mergeStatus)
	}))
	return b
}

func (b *brokerFake) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.calls...)
}

func (b *brokerFake) lastBody() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bodies) == 0 {
		return ""
	}
	return b.bodies[len(b.bodies)-1]
}

func telemetry() domain.Snapshot {
	return domain.Snapshot{
		"deviceId":        "ccu-4711",
		"date":            1718000000000.0,
		"SOC":             45.0,
		"Pccu":            1200.0,
		"PV_power_total":  1500.0,
		"firmwareVersion": "1.2.3",
	}
}
