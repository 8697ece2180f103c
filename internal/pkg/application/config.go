package application

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diwise/integration-maxxisun/internal/pkg/application/coordinator"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/maxxisun"
	"github.com/spf13/cast"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	BaseURL        string
	Token          string
	PollInterval   time.Duration
	IgnoreSSL      bool
	RequestTimeout time.Duration

	ContextBrokerURL string
	LWM2MURL         string

	ServicePort string
}

// Lookup returns the value of a configuration variable or defaultValue when
// it is not set.
type Lookup func(name, defaultValue string) string

// ParseConfig builds and validates the service configuration. The token is
// passed separately since it has no default.
func ParseConfig(token string, lookup Lookup) (Config, error) {
	cfg := Config{
		Token:            strings.TrimSpace(token),
		BaseURL:          strings.TrimRight(lookup("MAXXISUN_BASEURL", maxxisun.DefaultBaseURL), "/"),
		ContextBrokerURL: lookup("CONTEXT_BROKER_URL", ""),
		LWM2MURL:         lookup("LWM2M_URL", ""),
		ServicePort:      lookup("SERVICE_PORT", "8080"),
	}

	if cfg.Token == "" {
		return Config{}, fmt.Errorf("token must not be empty: %w", ErrInvalidConfig)
	}

	interval, err := cast.ToIntE(strings.TrimSpace(lookup("MAXXISUN_POLL_INTERVAL", "30")))
	if err != nil {
		return Config{}, fmt.Errorf("poll interval is not a number: %w", ErrInvalidConfig)
	}
	cfg.PollInterval = time.Duration(interval) * time.Second
	if cfg.PollInterval < coordinator.MinInterval || cfg.PollInterval > coordinator.MaxInterval {
		return Config{}, fmt.Errorf("poll interval %d outside %d..%d seconds: %w",
			interval, int(coordinator.MinInterval.Seconds()), int(coordinator.MaxInterval.Seconds()), ErrInvalidConfig)
	}

	cfg.IgnoreSSL, err = cast.ToBoolE(strings.TrimSpace(lookup("MAXXISUN_IGNORE_SSL", "false")))
	if err != nil {
		return Config{}, fmt.Errorf("ignore ssl must be true or false: %w", ErrInvalidConfig)
	}

	timeout, err := cast.ToIntE(strings.TrimSpace(lookup("MAXXISUN_REQUEST_TIMEOUT", "10")))
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("request timeout must be a positive number of seconds: %w", ErrInvalidConfig)
	}
	cfg.RequestTimeout = time.Duration(timeout) * time.Second

	return cfg, nil
}
