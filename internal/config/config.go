// Package config loads tracker settings from a YAML or TOML file.
//
// Loading starts from DefaultConfig, overlays whatever the file sets, applies
// environment overrides and finally validates the result. A missing file is
// not an error: the defaults plus environment are used.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/personyze/tracker-go/internal/transport"
)

// EnvAPIKey overrides the api_key setting when set.
const EnvAPIKey = "PERSONYZE_API_KEY"

// Platform is reported to the gateway with every tracker request.
const Platform = "Go"

// Config is the complete tracker configuration.
type Config struct {
	APIKey        string              `yaml:"api_key" toml:"api_key" validate:"required,len=40"`
	GatewayURL    string              `yaml:"gateway_url" toml:"gateway_url" validate:"required,url"`
	DBPath        string              `yaml:"db_path" toml:"db_path"`
	HTTPTimeout   time.Duration       `yaml:"http_timeout" toml:"http_timeout" validate:"gt=0"`
	Notifications NotificationsConfig `yaml:"notifications" toml:"notifications"`
	Device        DeviceConfig        `yaml:"device" toml:"device"`
}

// NotificationsConfig controls the notification poller.
type NotificationsConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Interval time.Duration `yaml:"interval" toml:"interval" validate:"gt=0"`
}

// DeviceConfig describes the device reported with every tracker request.
type DeviceConfig struct {
	Platform   string  `yaml:"platform" toml:"platform" validate:"required"`
	TimeZone   float64 `yaml:"time_zone" toml:"time_zone" validate:"gte=-12,lte=14"`
	Language   string  `yaml:"language" toml:"language" validate:"required,langtag"`
	Screen     string  `yaml:"screen" toml:"screen" validate:"omitempty,screen"`
	OS         string  `yaml:"os" toml:"os"`
	DeviceType string  `yaml:"device_type" toml:"device_type" validate:"oneof=phone tablet desktop"`
}

// DefaultConfig returns the configuration used before any file is applied.
func DefaultConfig() Config {
	_, offset := time.Now().Zone()
	return Config{
		GatewayURL:  transport.DefaultGatewayURL,
		HTTPTimeout: transport.DefaultTimeout,
		Notifications: NotificationsConfig{
			Enabled:  false,
			Interval: 15 * time.Minute,
		},
		Device: DeviceConfig{
			Platform:   Platform,
			TimeZone:   float64(offset) / 3600,
			Language:   languageFromEnv(),
			OS:         runtime.GOOS + "/" + runtime.GOARCH,
			DeviceType: "desktop",
		},
	}
}

// DefaultPath returns ~/.config/personyze/config.yaml, or "" if the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "personyze", "config.yaml")
}

// Load reads the configuration from DefaultPath.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the configuration from path. The format is chosen by
// extension: .toml for TOML, .yaml or .yml for YAML.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}
	if tag, err := NormalizeLanguage(cfg.Device.Language); err == nil {
		cfg.Device.Language = tag
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parsing config file: unknown key %q", undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// NormalizeLanguage reduces a locale such as "pt_BR.UTF-8" or "en-US" to its
// base language subtag ("pt", "en").
func NormalizeLanguage(s string) (string, error) {
	s, _, _ = strings.Cut(s, ".")
	s = strings.ReplaceAll(s, "_", "-")
	tag, err := language.Parse(s)
	if err != nil {
		return "", err
	}
	base, _ := tag.Base()
	return base.String(), nil
}

func languageFromEnv() string {
	for _, env := range []string{"LC_ALL", "LANG"} {
		if tag, err := NormalizeLanguage(os.Getenv(env)); err == nil && tag != "und" {
			return tag
		}
	}
	return "en"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("langtag", func(fl validator.FieldLevel) bool {
		_, err := language.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("screen", func(fl validator.FieldLevel) bool {
		var w, h int
		_, err := fmt.Sscanf(fl.Field().String(), "%dx%d", &w, &h)
		return err == nil && w > 0 && h > 0
	})
	return v
}

// Validate checks cfg and reports every violated rule.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}
