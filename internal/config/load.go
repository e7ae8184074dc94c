package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/viper"

	"github.com/maauso/gp-inbetween/internal/apperr"
)

// ErrTemplateExists is returned by WriteTemplate when the target file exists.
var ErrTemplateExists = errors.New("config: file already exists")

// Override mutates a RunConfig after the file and environment layers.
type Override func(*RunConfig)

// LoadOption configures Load.
type LoadOption func(*loader)

type loader struct {
	path      string
	lookuper  envconfig.Lookuper
	overrides []Override
	local     bool
}

// WithFile sets the config file path. An empty path selects DefaultPath.
func WithFile(path string) LoadOption {
	return func(l *loader) {
		l.path = path
	}
}

// WithLookuper sets the environment source. Defaults to the process environment.
func WithLookuper(lu envconfig.Lookuper) LoadOption {
	return func(l *loader) {
		l.lookuper = lu
	}
}

// WithOverrides appends explicit overrides, applied last.
func WithOverrides(o ...Override) LoadOption {
	return func(l *loader) {
		l.overrides = append(l.overrides, o...)
	}
}

// LocalOnly skips validation of the api section, for commands that never
// contact the inference service.
func LocalOnly() LoadOption {
	return func(l *loader) {
		l.local = true
	}
}

// Load resolves a RunConfig from defaults, the config file, the environment
// and overrides, in that order, and validates the result.
// A missing config file is not an error.
func Load(ctx context.Context, opts ...LoadOption) (*RunConfig, error) {
	l := &loader{lookuper: envconfig.OsLookuper()}
	for _, opt := range opts {
		opt(l)
	}
	if l.path == "" {
		l.path = DefaultPath()
	}

	cfg := Defaults()

	if err := readFile(l.path, &cfg); err != nil {
		return nil, err
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l.lookuper,
	}); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", apperr.ErrConfig, err)
	}

	for _, o := range l.overrides {
		o(&cfg)
	}

	validateFn := cfg.Validate
	if l.local {
		validateFn = cfg.ValidateLocal
	}
	if err := validateFn(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readFile merges the config file at path into cfg.
func readFile(path string, cfg *RunConfig) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %w", apperr.ErrConfig, path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %w", apperr.ErrConfig, path, err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key instead of the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the resolved configuration. Errors wrap apperr.ErrConfig
// and name the offending key.
func (c *RunConfig) Validate() error {
	return c.check(validate.Struct(c))
}

// ValidateLocal is Validate without the api section.
func (c *RunConfig) ValidateLocal() error {
	return c.check(validate.StructExcept(c, "API"))
}

func (c *RunConfig) check(err error) error {
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", apperr.ErrConfig, describe(verrs[0]))
		}
		return fmt.Errorf("%w: %w", apperr.ErrConfig, err)
	}

	w := c.Scoring.Weights
	if w.Similarity+w.Smoothness+w.Consistency <= 0 {
		return fmt.Errorf("%w: scoring.weights must not all be zero", apperr.ErrConfig)
	}
	return nil
}

// describe renders a validation failure using the dotted config key.
func describe(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_if", "required_unless", "required_with":
		if key == "api.key" {
			return "api.key is required (set INBETWEEN_API_KEY or api.key in the config file)"
		}
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fmt.Sprint(fe.Value()))
	case "gte", "gt":
		return fmt.Sprintf("%s must be %s %s, got %v", key, comparison(fe.Tag()), fe.Param(), fe.Value())
	case "lte", "lt":
		return fmt.Sprintf("%s must be %s %s, got %v", key, comparison(fe.Tag()), fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", key, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", key, fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}

func comparison(tag string) string {
	switch tag {
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	default:
		return "<="
	}
}

// WriteTemplate writes the default configuration to path. It never
// overwrites an existing file.
func WriteTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	v := viper.New()
	for key, value := range templateSettings(Defaults()) {
		v.Set(key, value)
	}

	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return fmt.Errorf("%w: %s", ErrTemplateExists, path)
		}
		return fmt.Errorf("config: write template: %w", err)
	}
	return nil
}

// templateSettings flattens d into dotted keys. Durations are written as
// strings so the file round-trips through Load.
func templateSettings(d RunConfig) map[string]any {
	return map[string]any{
		"api.key":                       "",
		"api.backend":                   d.API.Backend,
		"api.endpoint":                  d.API.Endpoint,
		"api.model_version":             d.API.ModelVersion,
		"api.style_strength":            d.API.StyleStrength,
		"api.prompt":                    d.API.Prompt,
		"api.seed":                      d.API.Seed,
		"api.request_timeout":           d.API.RequestTimeout.String(),
		"generation.frame_count":        d.Generation.FrameCount,
		"generation.poll_interval":      d.Generation.PollInterval.String(),
		"generation.timeout":            d.Generation.Timeout.String(),
		"retry.submit":                  d.Retry.Submit,
		"retry.poll":                    d.Retry.Poll,
		"retry.download":                d.Retry.Download,
		"retry.base_backoff":            d.Retry.BaseBackoff.String(),
		"retry.max_backoff":             d.Retry.MaxBackoff.String(),
		"preprocess.target_resolution":  d.Preprocess.TargetResolution,
		"preprocess.pad_square":         d.Preprocess.PadSquare,
		"preprocess.cleanup":            d.Preprocess.Cleanup,
		"preprocess.aspect_tolerance":   d.Preprocess.AspectTolerance,
		"scoring.auto_accept_threshold": d.Scoring.AutoAcceptThreshold,
		"scoring.weights.similarity":    d.Scoring.Weights.Similarity,
		"scoring.weights.smoothness":    d.Scoring.Weights.Smoothness,
		"scoring.weights.consistency":   d.Scoring.Weights.Consistency,
		"feedback.backend":              d.Feedback.Backend,
		"feedback.path":                 d.Feedback.Path,
		"feedback.dsn":                  d.Feedback.DSN,
		"output.dir":                    d.Output.Dir,
		"output.s3_bucket":              d.Output.S3Bucket,
		"output.s3_region":              d.Output.S3Region,
		"output.s3_prefix":              d.Output.S3Prefix,
		"output.s3_endpoint":            d.Output.S3Endpoint,
		"metrics.textfile":              d.Metrics.Textfile,
		"log.format":                    d.Log.Format,
		"log.level":                     d.Log.Level,
	}
}
