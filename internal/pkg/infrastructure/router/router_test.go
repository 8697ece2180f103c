package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/coordinator"
	"github.com/go-chi/chi"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func TestThatHealthEndpointReturns204(t *testing.T) {
	is := is.New(t)

	ts := newServerForTesting(&serviceFake{})
	defer ts.Close()

	resp, _ := testRequest(is, ts, http.MethodGet, "/health", nil)

	is.Equal(resp.StatusCode, http.StatusNoContent) // health endpoint status code not ok
}

func TestThatDeviceStatusIsReturned(t *testing.T) {
	is := is.New(t)

	svc := &serviceFake{status: application.DeviceStatus{
		State:               "ready",
		LastUpdateSucceeded: true,
		Device:              domain.NewDeviceContext("ccu-4711"),
		Sensors:             []application.SensorState{{ID: "ccu-4711_SOC", Value: 45, Available: true}},
	}}
	ts := newServerForTesting(svc)
	defer ts.Close()

	resp, body := testRequest(is, ts, http.MethodGet, "/api/device", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	status := application.DeviceStatus{}
	is.NoErr(json.Unmarshal([]byte(body), &status))
	is.Equal(status.State, "ready")
	is.Equal(status.Device.DeviceID, "ccu-4711")
	is.Equal(len(status.Sensors), 1)
}

func TestRefreshEndpoint(t *testing.T) {
	is := is.New(t)

	svc := &serviceFake{}
	ts := newServerForTesting(svc)
	defer ts.Close()

	resp, _ := testRequest(is, ts, http.MethodPost, "/api/device/refresh", nil)
	is.Equal(resp.StatusCode, http.StatusNoContent)
	is.Equal(svc.refreshes, 1)

	svc.err = errors.New("api request error")
	resp, _ = testRequest(is, ts, http.MethodPost, "/api/device/refresh", nil)
	is.Equal(resp.StatusCode, http.StatusBadGateway)
}

func TestSetConfigValue(t *testing.T) {
	is := is.New(t)

	svc := &serviceFake{}
	ts := newServerForTesting(svc)
	defer ts.Close()

	resp, body := testRequest(is, ts, http.MethodPut, "/api/device/config/maxSOC", strings.NewReader(`{"value": 90}`))
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(svc.field, "maxSOC")
	is.Equal(svc.value, 90)
	is.True(strings.Contains(body, `"maxSOC":90`))
}

func TestSetConfigOption(t *testing.T) {
	is := is.New(t)

	svc := &serviceFake{}
	ts := newServerForTesting(svc)
	defer ts.Close()

	resp, _ := testRequest(is, ts, http.MethodPut, "/api/device/config/ccuSpeed", strings.NewReader(`{"option": "Fast"}`))
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(svc.field, "ccuSpeed")
	is.Equal(svc.option, "Fast")
}

func TestSetConfigFieldErrors(t *testing.T) {
	is := is.New(t)

	testCases := []struct {
		err      error
		body     string
		expected int
	}{
		{body: `{"value": 1.5}`, expected: http.StatusBadRequest},
		{body: `{}`, expected: http.StatusBadRequest},
		{body: `{"value": 1, "option": "Fast"}`, expected: http.StatusBadRequest},
		{err: coordinator.ErrUnknownField, body: `{"value": 1}`, expected: http.StatusNotFound},
		{err: coordinator.ErrReadOnlyField, body: `{"value": 1}`, expected: http.StatusForbidden},
		{err: coordinator.ErrInvalidOption, body: `{"option": "x"}`, expected: http.StatusBadRequest},
		{err: coordinator.ErrOutOfRange, body: `{"value": -500}`, expected: http.StatusBadRequest},
		{err: errors.New("config update error"), body: `{"value": 1}`, expected: http.StatusBadGateway},
	}

	for _, tc := range testCases {
		svc := &serviceFake{}
		if tc.err != nil {
			svc.err = fmt.Errorf("field: %w", tc.err)
		}
		ts := newServerForTesting(svc)

		resp, _ := testRequest(is, ts, http.MethodPut, "/api/device/config/minSOC", strings.NewReader(tc.body))
		is.Equal(resp.StatusCode, tc.expected)

		ts.Close()
	}
}

func TestThatMetricsAreServed(t *testing.T) {
	is := is.New(t)

	ts := newServerForTesting(&serviceFake{})
	defer ts.Close()

	resp, _ := testRequest(is, ts, http.MethodGet, "/metrics", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
}

func newServerForTesting(svc DeviceService) *httptest.Server {
	r := setupRouter(chi.NewRouter(), log.Logger, svc, prometheus.NewRegistry())
	return httptest.NewServer(r.router)
}

func testRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	respBody, _ := io.ReadAll(resp.Body)
	defer resp.Body.Close()

	return resp, string(respBody)
}

type serviceFake struct {
	status    application.DeviceStatus
	err       error
	refreshes int

	field  string
	value  int
	option string
}

func (s *serviceFake) Status() application.DeviceStatus {
	return s.status
}

func (s *serviceFake) Refresh(ctx context.Context) error {
	s.refreshes++
	return s.err
}

func (s *serviceFake) SetConfigValue(ctx context.Context, field string, value int) (domain.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.field, s.value = field, value
	return domain.Snapshot{field: value}, nil
}

func (s *serviceFake) SetConfigOption(ctx context.Context, field, option string) (domain.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.field, s.option = field, option
	return domain.Snapshot{field: option}, nil
}
