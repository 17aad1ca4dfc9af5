package binding

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
)

// DefaultPollInterval is used by watches that ask for a non-positive poll
// interval when the environment does not set one.
const DefaultPollInterval = 5 * time.Second

// Environment is the ambient configuration every controller reads: the
// client to talk to and whether only ops-style endpoints may be used.
//
// An Environment is immutable once built. Its ID stands in for the
// client's identity in dependency keys, so installing a different
// environment re-resolves every binding under it.
type Environment struct {
	// ID distinguishes environments in dependency keys.
	ID string

	// Client serves reads, writes and subscriptions.
	Client client.Client

	// OpsOnly restricts reads to ReadByFilter/ReadByIDs. Expression
	// queries are rejected.
	OpsOnly bool

	// PollInterval replaces non-positive watch intervals.
	PollInterval time.Duration

	// WriteLevel and Who are the defaults for point writes that do not
	// set them.
	WriteLevel int
	Who        string
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithOpsOnly sets the ops-only flag.
func WithOpsOnly(opsOnly bool) EnvOption {
	return func(e *Environment) { e.OpsOnly = opsOnly }
}

// WithPollInterval sets the default watch poll interval.
func WithPollInterval(d time.Duration) EnvOption {
	return func(e *Environment) { e.PollInterval = d }
}

// WithWriteDefaults sets the default write level and writer.
func WithWriteDefaults(level int, who string) EnvOption {
	return func(e *Environment) {
		e.WriteLevel = level
		e.Who = who
	}
}

// WithEnvironmentID overrides the generated ID. Used by tests and golden
// traces that need stable dependency keys.
func WithEnvironmentID(id string) EnvOption {
	return func(e *Environment) { e.ID = id }
}

// NewEnvironment builds an environment around c with a fresh UUIDv7 ID.
func NewEnvironment(c client.Client, opts ...EnvOption) *Environment {
	e := &Environment{
		ID:           engine.UUIDv7Generator{}.Generate(),
		Client:       c,
		PollInterval: DefaultPollInterval,
		WriteLevel:   client.DefaultWriteLevel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Client == nil {
		e.Client = client.Unavailable{}
	}
	return e
}

var (
	defaultEnvOnce sync.Once
	defaultEnv     *Environment
)

// DefaultEnvironment is the process-wide fallback used when a context
// carries no environment. Its client fails every call with
// client.ErrNoClient.
func DefaultEnvironment() *Environment {
	defaultEnvOnce.Do(func() {
		defaultEnv = NewEnvironment(client.Unavailable{}, WithEnvironmentID("default"))
	})
	return defaultEnv
}

type envKey struct{}

// WithEnvironment returns a context carrying env for every controller
// call made with it.
func WithEnvironment(ctx context.Context, env *Environment) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvironmentFrom returns the environment carried by ctx, or
// DefaultEnvironment.
func EnvironmentFrom(ctx context.Context) *Environment {
	if env, ok := ctx.Value(envKey{}).(*Environment); ok && env != nil {
		return env
	}
	return DefaultEnvironment()
}

// pollInterval applies the environment default to a requested interval.
func (e *Environment) pollInterval(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return DefaultPollInterval
}
