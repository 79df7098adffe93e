package config

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dagrule/engine/internal/leaf"
)

// Config bundles every external service and tunable the engine needs to
// run, built with the functional-options pattern copied directly from the
// rule-chain engine's types.Option/types.Config machinery (Option
// func(*Config) error, With... constructors).
type Config struct {
	Logger Logger

	VFS    leaf.VFS
	Store  leaf.Store
	HTTP   leaf.HTTPGetter
	Runner leaf.CommandRunner

	// BuildRoot is the filesystem root glob expansion and digesting are
	// relative to.
	BuildRoot string
	// Ignores is a set of path prefixes (relative to BuildRoot). It is only
	// stored: the VFS is constructed separately and nothing reads this field,
	// so it hides no path from the engine.
	Ignores []string
	// StoreDir is where the local content-addressed store keeps blobs.
	StoreDir string

	// RetryLimit is stored only; the substrate does not read it and uses its
	// own fixed limit for retrying uncacheable nodes that observe
	// Invalidated failures.
	RetryLimit int

	// MQTTBroker, if non-empty, is dialed to fan completed workunit spans
	// out to an external collector. Empty disables the fan-out.
	MQTTBroker string
	MQTTTopic  string
}

// Option mutates a Config under construction.
type Option func(*Config) error

// New builds a Config from its defaults plus the given options, applied in
// order, mirroring the rule-chain engine's NewConfig(...Option) convention.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		Logger:     DefaultLogger(),
		Ignores:    nil,
		StoreDir:   ".dagrule/store",
		RetryLimit: 3,
		MQTTTopic:  "dagrule/workunits",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func WithLogger(l Logger) Option {
	return func(c *Config) error { c.Logger = l; return nil }
}

func WithBuildRoot(root string) Option {
	return func(c *Config) error { c.BuildRoot = root; return nil }
}

func WithIgnores(ignores []string) Option {
	return func(c *Config) error { c.Ignores = ignores; return nil }
}

func WithStoreDir(dir string) Option {
	return func(c *Config) error { c.StoreDir = dir; return nil }
}

func WithRetryLimit(n int) Option {
	return func(c *Config) error { c.RetryLimit = n; return nil }
}

func WithMQTT(broker, topic string) Option {
	return func(c *Config) error {
		c.MQTTBroker = broker
		if topic != "" {
			c.MQTTTopic = topic
		}
		return nil
	}
}

// WithVFS, WithStore, WithHTTP, and WithRunner let a caller substitute fakes
// for testing instead of the local-filesystem-backed defaults cmd/engine
// wires in.
func WithVFS(v leaf.VFS) Option {
	return func(c *Config) error { c.VFS = v; return nil }
}

func WithStore(s leaf.Store) Option {
	return func(c *Config) error { c.Store = s; return nil }
}

func WithHTTP(h leaf.HTTPGetter) Option {
	return func(c *Config) error { c.HTTP = h; return nil }
}

func WithRunner(r leaf.CommandRunner) Option {
	return func(c *Config) error { c.Runner = r; return nil }
}

// NewMQTTClient dials c.MQTTBroker if configured, returning nil (disabling
// span fan-out) when it isn't.
func NewMQTTClient(c *Config) mqtt.Client {
	if c.MQTTBroker == "" {
		return nil
	}
	opts := mqtt.NewClientOptions().AddBroker(c.MQTTBroker)
	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil
	}
	return client
}
