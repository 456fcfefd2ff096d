package retry

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jzx17/goretry/pkg/types"
)

// Kind names a backoff algorithm
type Kind string

const (
	KindFixed       Kind = "fixed"
	KindIncremental Kind = "incremental"
	KindExponential Kind = "exponential"
)

// Config describes a Strategy declaratively, for example from the
// environment. Only the fields of the selected Kind are used.
type Config struct {
	Kind       Kind          `validate:"required,oneof=fixed incremental exponential"`
	MaxRetries int           `validate:"gte=0"`
	Interval   time.Duration `validate:"gte=0"` // fixed
	Initial    time.Duration `validate:"gte=0"` // incremental
	Increment  time.Duration `validate:"gte=0"` // incremental
	MinBackoff time.Duration `validate:"gte=0"` // exponential
	MaxBackoff time.Duration `validate:"gte=0"` // exponential
	SlotTime   time.Duration `validate:"gte=0"` // exponential
	Seed       int64         // exponential
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateExponential, Config{})
	return v
}

func validateExponential(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Kind != KindExponential {
		return
	}
	if c.SlotTime <= 0 {
		sl.ReportError(c.SlotTime, "SlotTime", "SlotTime", "gt", "0")
	}
	if c.MaxBackoff < c.MinBackoff {
		sl.ReportError(c.MaxBackoff, "MaxBackoff", "MaxBackoff", "gtefield", "MinBackoff")
	}
}

// DefaultConfig returns the exponential backoff defaults
func DefaultConfig() Config {
	return Config{
		Kind:       KindExponential,
		MaxRetries: DefaultMaxRetries,
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
		SlotTime:   DefaultSlotTime,
		Seed:       DefaultSeed,
	}
}

// Validate reports every field that cannot build a strategy. Negative
// budgets and delays are rejected rather than clamped.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	return nil
}

// Strategy validates c and builds the strategy it describes
func (c Config) Strategy() (Strategy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Kind {
	case KindFixed:
		return NewFixedInterval(c.MaxRetries, c.Interval), nil
	case KindIncremental:
		return NewIncremental(c.MaxRetries, c.Initial, c.Increment), nil
	default:
		return NewExponentialBackoff(c.MaxRetries,
			WithMinBackoff(c.MinBackoff),
			WithMaxBackoff(c.MaxBackoff),
			WithSlotTime(c.SlotTime),
			WithRand(rand.New(rand.NewSource(c.Seed))), // #nosec G404 -- crypto rand not needed for backoff jitter
		), nil
	}
}

// ConfigFromEnv starts from DefaultConfig and overrides it with
// <prefix>_KIND, _MAX_RETRIES, _INTERVAL, _INITIAL, _INCREMENT,
// _MIN_BACKOFF, _MAX_BACKOFF, _SLOT_TIME and _SEED. Durations use
// time.ParseDuration syntax ("250ms", "2s").
func ConfigFromEnv(prefix string) (Config, error) {
	c := DefaultConfig()
	key := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "_" + name
	}

	if v, ok := os.LookupEnv(key("KIND")); ok {
		c.Kind = Kind(v)
	}

	if v, ok := os.LookupEnv(key("MAX_RETRIES")); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", types.ErrInvalidConfig, key("MAX_RETRIES"), err)
		}
		c.MaxRetries = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"INTERVAL", &c.Interval},
		{"INITIAL", &c.Initial},
		{"INCREMENT", &c.Increment},
		{"MIN_BACKOFF", &c.MinBackoff},
		{"MAX_BACKOFF", &c.MaxBackoff},
		{"SLOT_TIME", &c.SlotTime},
	}
	for _, f := range durations {
		if v, ok := os.LookupEnv(key(f.name)); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s: %w", types.ErrInvalidConfig, key(f.name), err)
			}
			*f.dst = d
		}
	}

	if v, ok := os.LookupEnv(key("SEED")); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", types.ErrInvalidConfig, key("SEED"), err)
		}
		c.Seed = seed
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
