package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Neumenon/graphbin/frame"
	"github.com/Neumenon/graphbin/graphbin"
)

// DefaultConfigPath is read when --config is not given and the file exists.
const DefaultConfigPath = "graphbin.yaml"

// envPrefix namespaces every environment override.
const envPrefix = "GRAPHBIN_"

// Config holds the CLI configuration. Values come from defaults, then
// the YAML file, then GRAPHBIN_* environment variables.
type Config struct {
	// Names registered in the Context. Classes have no hooks, callables
	// return undefined, and each token is a fresh token labelled with its
	// name.
	Classes   []string `yaml:"classes"   env:"CLASSES"`
	Callables []string `yaml:"callables" env:"CALLABLES"`
	Tokens    []string `yaml:"tokens"    env:"TOKENS"`

	Encode EncodeConfig `yaml:"encode" envPrefix:"ENCODE_"`
	Decode DecodeConfig `yaml:"decode" envPrefix:"DECODE_"`
	Frame  FrameConfig  `yaml:"frame"  envPrefix:"FRAME_"`
	Log    LogConfig    `yaml:"log"    envPrefix:"LOG_"`
}

type EncodeConfig struct {
	ReferencePrimitives bool `yaml:"reference_primitives" env:"REFERENCE_PRIMITIVES"`
}

type DecodeConfig struct {
	MaxDepth int  `yaml:"max_depth" env:"MAX_DEPTH"`
	Strict   bool `yaml:"strict"    env:"STRICT"`
}

type FrameConfig struct {
	Compression string `yaml:"compression" env:"COMPRESSION"` // none|lz4|zstd
	CRC         bool   `yaml:"crc"         env:"CRC"`
	Digest      bool   `yaml:"digest"      env:"DIGEST"`
	MaxPayload  int    `yaml:"max_payload" env:"MAX_PAYLOAD"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`  // debug|info|warn|error
	Format string `yaml:"format" env:"FORMAT"` // text|json
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Decode: DecodeConfig{MaxDepth: graphbin.DefaultMaxDepth},
		Frame: FrameConfig{
			Compression: "none",
			CRC:         true,
			MaxPayload:  frame.MaxPayloadSize,
		},
		Log: LogConfig{Level: "warn", Format: "text"},
	}
}

// LoadConfig reads path (or DefaultConfigPath when path is empty and the
// file exists), then applies overrides from environ. A nil environ means
// the process environment.
func LoadConfig(path string, environ map[string]string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.unmarshal(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	opts := env.Options{Prefix: envPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unmarshal decodes YAML over the current values. Unknown keys are
// rejected.
func (c *Config) unmarshal(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every enumerated and numeric setting.
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format: unknown format %q", c.Log.Format)
	}
	if _, err := frame.ParseCodec(c.Frame.Compression); err != nil {
		return fmt.Errorf("config: frame.compression: %w", err)
	}
	if c.Frame.MaxPayload <= 0 {
		return fmt.Errorf("config: frame.max_payload: must be positive, got %d", c.Frame.MaxPayload)
	}
	if c.Decode.MaxDepth < 0 {
		return fmt.Errorf("config: decode.max_depth: must not be negative, got %d", c.Decode.MaxDepth)
	}
	if err := uniqueNames("classes", c.Classes); err != nil {
		return err
	}
	if err := uniqueNames("callables", c.Callables); err != nil {
		return err
	}
	return uniqueNames("tokens", c.Tokens)
}

func uniqueNames(key string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("config: %s: empty name", key)
		}
		if seen[name] {
			return fmt.Errorf("config: %s: duplicate name %q", key, name)
		}
		seen[name] = true
	}
	return nil
}

// NewContext builds a Context with every configured name registered.
func (c *Config) NewContext() *graphbin.Context {
	ctx := graphbin.NewContext()
	for _, name := range c.Classes {
		ctx.RegisterClass(name, graphbin.NewClass(name))
	}
	for _, name := range c.Callables {
		ctx.RegisterCallable(name, graphbin.NewCallable(name, nil))
	}
	for _, name := range c.Tokens {
		ctx.RegisterToken(name, graphbin.Token(name))
	}
	return ctx
}

func (e EncodeConfig) Options() graphbin.EncodeOptions {
	return graphbin.EncodeOptions{ReferencePrimitives: e.ReferencePrimitives}
}

func (d DecodeConfig) Options() graphbin.DecodeOptions {
	return graphbin.DecodeOptions{MaxDepth: d.MaxDepth, Strict: d.Strict}
}

// WriterOptions returns the frame writer options for this configuration.
func (f FrameConfig) WriterOptions(codec frame.Codec, enc graphbin.EncodeOptions) []frame.WriterOption {
	opts := []frame.WriterOption{
		frame.WithCompression(codec),
		frame.WithEncodeOptions(enc),
	}
	if f.CRC {
		opts = append(opts, frame.WithCRC())
	}
	if f.Digest {
		opts = append(opts, frame.WithDigest())
	}
	return opts
}

// SlogLevel parses the level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
