package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Content     ContentConfig     `yaml:"content"`
	Autosave    AutosaveConfig    `yaml:"autosave"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Uploads     UploadsConfig     `yaml:"uploads"`
	Preview     PreviewConfig     `yaml:"preview"`
	Theme       ThemeConfig       `yaml:"theme"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type SiteConfig struct {
	Name        string `yaml:"name" default:"Matrix CBS"`
	Description string `yaml:"description" default:"Training courses, workshops and articles"`
	BaseURL     string `yaml:"base_url" default:"https://matrixcbs.com"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" default:"12800"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" default:"./matrixcbs.db"`
}

type ContentConfig struct {
	PostsPerPage int `yaml:"posts_per_page" default:"20"`

	// RelatedDefault is the limit used when a caller omits one. The hard
	// ceiling of 10 is an API contract, not configuration.
	RelatedDefault int `yaml:"related_default" default:"4"`

	// RefreshSeconds controls the cache refresh / scheduled-publish loop.
	RefreshSeconds int `yaml:"refresh_seconds" default:"10"`
}

type AutosaveConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`

	// DebounceSeconds is the inactivity window after the last edit before a
	// save fires. IntervalSeconds is the safety-net period that forces a save
	// of any unsaved changes regardless of typing activity.
	DebounceSeconds int `yaml:"debounce_seconds" default:"3"`
	IntervalSeconds int `yaml:"interval_seconds" default:"30"`
}

type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled" default:"false"`

	// AllowedIPs bypass the maintenance gate entirely.
	AllowedIPs []string `yaml:"allowed_ips" default:"127.0.0.1,::1"`
}

type UploadsConfig struct {
	// Backend is "fs" or "s3".
	Backend string `yaml:"backend" default:"fs"`
	Dir     string `yaml:"dir" default:"./media"`

	MaxSizeMB int `yaml:"max_size_mb" default:"16"`

	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint string `yaml:"endpoint" default:""`
	Bucket   string `yaml:"bucket" default:""`
}

type PreviewConfig struct {
	// TokenTTLMinutes bounds how long a signed preview link stays valid.
	TokenTTLMinutes int `yaml:"token_ttl_minutes" default:"60"`
}

type ThemeConfig struct {
	SyntaxHighlighting SyntaxConfig `yaml:"syntax_highlighting"`
}

type SyntaxConfig struct {
	Default string `yaml:"default" default:"gruvbox"`
}

var AppConfig *Config

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	// Try to read and parse the config file
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		AppConfig = config
		return nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	AppConfig = config
	return nil
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
