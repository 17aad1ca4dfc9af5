package scalar

import (
	"context"
	"time"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

// WriteFunc writes v to the tracked record. Non-zero fields of opts take
// precedence over the scalar's own write options and the environment's
// defaults. Tag writes ignore opts. A nil v releases the point's level or
// removes the tag.
type WriteFunc func(ctx context.Context, v haystack.Value, opts client.WriteOptions) error

// Option configures a Point or Tag.
type Option func(*options)

type options struct {
	poll     time.Duration
	label    string
	write    client.WriteOptions
	writeTag string
}

// WithPollInterval sets the subscription's poll interval. Non-positive
// uses the environment default.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

// WithLabel names the subscription.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithWriteOptions sets write options applied to every write unless the
// call overrides them.
func WithWriteOptions(w client.WriteOptions) Option {
	return func(o *options) { o.write = w }
}

// WithWriteTag makes a Tag write a different tag than it reads.
func WithWriteTag(tag string) Option {
	return func(o *options) { o.writeTag = tag }
}

// mergeWrite resolves write options: per call, then general, then the
// environment, then client.DefaultWriteLevel.
func mergeWrite(call, general client.WriteOptions, env *binding.Environment) client.WriteOptions {
	out := client.WriteOptions{
		Level:    firstPositive(call.Level, general.Level, env.WriteLevel, client.DefaultWriteLevel),
		Who:      call.Who,
		Duration: call.Duration,
	}
	if out.Who == "" {
		out.Who = general.Who
	}
	if out.Who == "" {
		out.Who = env.Who
	}
	if out.Duration <= 0 {
		out.Duration = general.Duration
	}
	return out
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
