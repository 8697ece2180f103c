package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/coordinator"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Router interface {
	Start(port string) error
}

// DeviceService is the part of the application exposed over http.
type DeviceService interface {
	Status() application.DeviceStatus
	Refresh(ctx context.Context) error
	SetConfigValue(ctx context.Context, field string, value int) (domain.Snapshot, error)
	SetConfigOption(ctx context.Context, field, option string) (domain.Snapshot, error)
}

type routerStruct struct {
	router  chi.Router
	log     zerolog.Logger
	service DeviceService
}

func SetupRouter(chiRouter chi.Router, log zerolog.Logger, service DeviceService, gatherer prometheus.Gatherer) Router {
	return setupRouter(chiRouter, log, service, gatherer)
}

func setupRouter(chiRouter chi.Router, log zerolog.Logger, service DeviceService, gatherer prometheus.Gatherer) *routerStruct {
	r := &routerStruct{
		router:  chiRouter,
		log:     log,
		service: service,
	}

	chiRouter.Use(middleware.Logger)
	chiRouter.Get("/health", r.health)
	chiRouter.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	chiRouter.Route("/api/device", func(rt chi.Router) {
		rt.Get("/", r.deviceStatus)
		rt.Post("/refresh", r.refresh)
		rt.Put("/config/{field}", r.setConfigField)
	})

	return r
}

func (r *routerStruct) Start(port string) error {
	r.log.Info().Str("port", port).Msg("starting to listen for connections")
	return http.ListenAndServe(fmt.Sprintf(":%s", port), r.router)
}

func (router *routerStruct) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) deviceStatus(w http.ResponseWriter, r *http.Request) {
	router.writeJSON(w, http.StatusOK, router.service.Status())
}

func (router *routerStruct) refresh(w http.ResponseWriter, r *http.Request) {
	if err := router.service.Refresh(r.Context()); err != nil {
		router.writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type configRequest struct {
	Value  *int    `json:"value"`
	Option *string `json:"option"`
}

func (router *routerStruct) setConfigField(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")

	req := configRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		router.writeError(w, http.StatusBadRequest, fmt.Errorf("could not decode request body: %w", err))
		return
	}

	var cfg domain.Snapshot
	var err error

	switch {
	case req.Value != nil && req.Option == nil:
		cfg, err = router.service.SetConfigValue(r.Context(), field, *req.Value)
	case req.Option != nil && req.Value == nil:
		cfg, err = router.service.SetConfigOption(r.Context(), field, *req.Option)
	default:
		router.writeError(w, http.StatusBadRequest, errors.New("exactly one of value or option must be set"))
		return
	}

	if err != nil {
		router.writeError(w, statusFor(err), err)
		return
	}

	router.writeJSON(w, http.StatusOK, cfg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrUnknownField):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrReadOnlyField):
		return http.StatusForbidden
	case errors.Is(err, coordinator.ErrInvalidOption), errors.Is(err, coordinator.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (router *routerStruct) writeJSON(w http.ResponseWriter, code int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		router.log.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func (router *routerStruct) writeError(w http.ResponseWriter, code int, err error) {
	router.writeJSON(w, code, map[string]string{"error": err.Error()})
}
