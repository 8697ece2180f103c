package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diwise/integration-maxxisun/domain"
	"github.com/diwise/integration-maxxisun/internal/pkg/application/maxxisun"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownField  = errors.New("unknown config field")
	ErrReadOnlyField = errors.New("config field is read-only")
	ErrInvalidOption = errors.New("value is not a valid option")
	ErrOutOfRange    = errors.New("value is out of range")
)

const (
	MinInterval     = 1 * time.Second
	MaxInterval     = 600 * time.Second
	DefaultInterval = 30 * time.Second

	DefaultPublishTimeout = 30 * time.Second
)

type State int

const (
	Uninitialized State = iota
	Refreshing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Refreshing:
		return "refreshing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is a read-only copy of the coordinator data handed to update listeners.
type View struct {
	DeviceID  string
	Telemetry domain.Snapshot
	Config    domain.Snapshot
	Updated   time.Time
}

type UpdateListener func(ctx context.Context, v View)

type Coordinator interface {
	Refresh(ctx context.Context) error
	RequestRefresh()
	Run(ctx context.Context)
	Close()

	EnsureConfig(ctx context.Context) error
	SetConfigField(ctx context.Context, field string, value int) (domain.Snapshot, error)

	Data() domain.Snapshot
	Config() domain.Snapshot
	DeviceID() string
	LastUpdateSucceeded() bool
	LastUpdated() time.Time
	LastError() error
	State() State
	Interval() time.Duration
}

// data is never modified once it has been stored in the coordinator, every
// update stores a new copy.
type data struct {
	telemetry   domain.Snapshot
	config      domain.Snapshot
	deviceID    string
	succeeded   bool
	state       State
	lastUpdated time.Time
	lastErr     error
}

type coordinator struct {
	client   maxxisun.Client
	interval time.Duration
	log      zerolog.Logger

	mu      sync.RWMutex
	current data

	group singleflight.Group

	listeners      []UpdateListener
	views          chan View
	publishTimeout time.Duration

	lifetime context.Context
	cancel   context.CancelFunc
}

type Option func(*coordinator)

// WithInterval sets the poll interval. Values outside 1..600 seconds are clamped.
func WithInterval(interval time.Duration) Option {
	return func(c *coordinator) {
		c.interval = ClampInterval(interval)
	}
}

func WithUpdateListener(l UpdateListener) Option {
	return func(c *coordinator) {
		c.listeners = append(c.listeners, l)
	}
}

// WithPublishTimeout bounds the time each listener gets per update.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(c *coordinator) {
		if timeout > 0 {
			c.publishTimeout = timeout
		}
	}
}

func ClampInterval(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	if interval > MaxInterval {
		return MaxInterval
	}
	return interval
}

// New creates a coordinator for one device. The context is used for the
// lifetime of the coordinator and for its logger.
func New(ctx context.Context, client maxxisun.Client, opts ...Option) Coordinator {
	lifetime, cancel := context.WithCancel(ctx)

	c := &coordinator{
		client:         client,
		interval:       DefaultInterval,
		log:            logging.GetFromContext(ctx),
		views:          make(chan View, 1),
		publishTimeout: DefaultPublishTimeout,
		lifetime:       lifetime,
		cancel:         cancel,
	}

	for _, opt := range opts {
		opt(c)
	}

	if len(c.listeners) > 0 {
		go c.publish()
	}

	return c
}

// Refresh fetches telemetry and config. Concurrent calls share a single fetch.
// The fetch itself is bound to the coordinator lifetime, so a caller giving up
// on ctx does not abort it for others.
func (c *coordinator) Refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (any, error) {
		return nil, c.refresh(c.lifetime)
	})

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *coordinator) RequestRefresh() {
	go func() {
		if err := c.Refresh(c.lifetime); err != nil {
			c.log.Debug().Err(err).Msg("requested refresh failed")
		}
	}()
}

func (c *coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.Info().Str("interval", c.interval.String()).Msg("starting to poll device")

	_ = c.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.lifetime.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Close abandons any request in flight. Results arriving after Close are discarded.
func (c *coordinator) Close() {
	c.cancel()
}

func (c *coordinator) refresh(ctx context.Context) error {
	c.update(ctx, func(d *data) { d.state = Refreshing })

	c.log.Debug().Msg("requesting data from maxxisun api")

	telemetry, err := c.client.GetTelemetry(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.log.Error().Err(err).Msg("failed to fetch telemetry")
		c.update(ctx, func(d *data) {
			d.state = Failed
			d.succeeded = false
			d.lastErr = err
		})
		return fmt.Errorf("api request error: %w", err)
	}

	deviceID := telemetry.DeviceID()
	if deviceID == "" {
		deviceID = c.DeviceID()
	}

	config, cfgErr := c.fetchConfig(ctx, deviceID)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if cfgErr != nil {
		c.log.Warn().Err(cfgErr).Msg("config fetch failed")
	}

	now := time.Now().UTC()

	c.update(ctx, func(d *data) {
		d.telemetry = telemetry
		if config != nil {
			d.config = config
		}
		d.deviceID = deviceID
		d.state = Ready
		d.succeeded = true
		d.lastUpdated = now
		d.lastErr = nil
	})

	stored := c.snapshot()
	c.notify(View{
		DeviceID:  stored.deviceID,
		Telemetry: stored.telemetry.Clone(),
		Config:    stored.config.Clone(),
		Updated:   stored.lastUpdated,
	})

	return nil
}

func (c *coordinator) fetchConfig(ctx context.Context, deviceID string) (domain.Snapshot, error) {
	raw, err := c.client.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	cfg, ok := maxxisun.Normalize(raw, deviceID, "")
	if !ok {
		return nil, fmt.Errorf("config is not a json object: %w", maxxisun.ErrMalformedResponse)
	}

	return cfg, nil
}

// notify hands v to the publish loop. Only the latest view is kept, a view
// that has not been picked up yet is replaced.
func (c *coordinator) notify(v View) {
	if len(c.listeners) == 0 {
		return
	}

	for {
		select {
		case c.views <- v:
			return
		default:
		}

		select {
		case <-c.views:
		default:
		}
	}
}

// publish runs the listeners, one view at a time, until the coordinator is closed.
func (c *coordinator) publish() {
	for {
		select {
		case <-c.lifetime.Done():
			return
		case v := <-c.views:
			for _, l := range c.listeners {
				ctx, cancel := context.WithTimeout(c.lifetime, c.publishTimeout)
				l(ctx, v)
				cancel()
			}
		}
	}
}

// EnsureConfig loads the config once. It does nothing when a config is cached.
func (c *coordinator) EnsureConfig(ctx context.Context) error {
	if c.snapshot().config != nil {
		return nil
	}

	ch := c.group.DoChan("config", func() (any, error) {
		cfg, err := c.fetchConfig(c.lifetime, c.DeviceID())
		if err != nil {
			return nil, err
		}
		c.update(c.lifetime, func(d *data) { d.config = cfg })
		return nil, nil
	})

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetConfigField writes a single field by sending the full known config
// document with the field replaced. Reads running at the same time may see the
// config from before or after the write.
func (c *coordinator) SetConfigField(ctx context.Context, field string, value int) (domain.Snapshot, error) {
	log := c.log.With().Str("field", field).Logger()

	f, ok := domain.LookupControlField(field)
	if !ok {
		return nil, fmt.Errorf("%s: %w", field, ErrUnknownField)
	}
	if !f.Writable {
		log.Warn().Msg("field is read-only, ignoring set attempt")
		return nil, fmt.Errorf("%s: %w", field, ErrReadOnlyField)
	}
	if f.Kind == domain.ControlSelect {
		if _, ok := f.LabelFor(value); !ok {
			return nil, fmt.Errorf("%d for %s: %w", value, field, ErrInvalidOption)
		}
	}
	if f.Kind == domain.ControlNumber && !f.InRange(value) {
		return nil, fmt.Errorf("%d for %s, expected %d..%d: %w", value, field, f.Min, f.Max, ErrOutOfRange)
	}

	if err := c.EnsureConfig(ctx); err != nil {
		log.Error().Err(err).Msg("failed to load config before update")
		return nil, fmt.Errorf("config update error: %w", err)
	}

	current := c.snapshot()
	payload := maxxisun.BuildUpdatePayload(current.config, domain.ControlFieldKeys(), field, value, current.deviceID)

	log.Debug().Int("value", value).Msg("updating device config field with merged payload")

	raw, err := c.client.PutConfig(ctx, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to update config field")
		return nil, fmt.Errorf("config update error: %w", err)
	}

	cfg, ok := maxxisun.Normalize(raw, c.DeviceID(), payload.DeviceID())
	if !ok {
		cfg = payload
	}

	c.update(c.lifetime, func(d *data) { d.config = cfg })
	c.RequestRefresh()

	return cfg.Clone(), nil
}

func (c *coordinator) snapshot() data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// update applies fn to a copy of the current data and stores the copy, unless
// the coordinator has been closed.
func (c *coordinator) update(ctx context.Context, fn func(d *data)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifetime.Err() != nil || ctx.Err() != nil {
		return
	}

	next := c.current
	fn(&next)
	c.current = next
}

func (c *coordinator) Data() domain.Snapshot {
	return c.snapshot().telemetry.Clone()
}

func (c *coordinator) Config() domain.Snapshot {
	return c.snapshot().config.Clone()
}

func (c *coordinator) DeviceID() string {
	return c.snapshot().deviceID
}

func (c *coordinator) LastUpdateSucceeded() bool {
	return c.snapshot().succeeded
}

func (c *coordinator) LastUpdated() time.Time {
	return c.snapshot().lastUpdated
}

func (c *coordinator) LastError() error {
	return c.snapshot().lastErr
}

func (c *coordinator) State() State {
	return c.snapshot().state
}

func (c *coordinator) Interval() time.Duration {
	return c.interval
}
