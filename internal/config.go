package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	DecodeErrorFail = "fail"
	DecodeErrorSkip = "skip"
)

type Config struct {
	Timezone            string   `mapstructure:"timezone"`
	TrashFolder         string   `mapstructure:"trash_folder"`
	EditedMarker        string   `mapstructure:"edited_marker"`
	ImageExt            []string `mapstructure:"image_extensions"`
	VideoExt            []string `mapstructure:"video_extensions"`
	OtherExt            []string `mapstructure:"other_extensions"`
	SidecarExt          string   `mapstructure:"sidecar_extension"`
	DivergenceThreshold int      `mapstructure:"divergence_threshold"`
	DecodeErrorPolicy   string   `mapstructure:"decode_error_policy"`
	CompareSidecar      bool     `mapstructure:"compare_sidecar"`
	LogFile             string   `mapstructure:"log_file"`
	ExifToolPath        string   `mapstructure:"exiftool_path"`
	FFmpegPath          string   `mapstructure:"ffmpeg_path"`
	FFprobePath         string   `mapstructure:"ffprobe_path"`
	ManifestDir         string   `mapstructure:"manifest_dir"`
}

// LoadConfig reads mediarecon.toml from the user config dir, or from
// configFile when it is not empty. Environment variables prefixed with
// MEDIARECON_ override file values.
func LoadConfig(configFile string) (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to find user config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	if configFile != "" {
		path, err := homedir.Expand(configFile)
		if err != nil {
			return nil, newConfigurationError(configFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mediarecon")
		v.AddConfigPath(filepath.Join(configDir, "mediarecon"))
	}

	v.SetEnvPrefix("MEDIARECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults:
	v.SetDefault("timezone", "Europe/Rome")
	v.SetDefault("trash_folder", "Cestino")
	v.SetDefault("edited_marker", "modificato")
	v.SetDefault("image_extensions", DefaultImageExtensions)
	v.SetDefault("video_extensions", DefaultVideoExtensions)
	v.SetDefault("other_extensions", DefaultOtherExtensions)
	v.SetDefault("sidecar_extension", ".json")
	v.SetDefault("divergence_threshold", 10)
	v.SetDefault("decode_error_policy", DecodeErrorFail)
	v.SetDefault("compare_sidecar", false)
	v.SetDefault("log_file", "mediarecon.log")
	v.SetDefault("exiftool_path", "")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("manifest_dir", filepath.Join(configDir, "mediarecon", "runs"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config file is fine, defaults apply.
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, newConfigurationError(configFile, fmt.Errorf("failed to read config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, newConfigurationError(configFile, fmt.Errorf("failed to parse config: %w", err))
	}

	for _, p := range []*string{&cfg.LogFile, &cfg.ExifToolPath, &cfg.ManifestDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, newConfigurationError(*p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration LoadConfig yields with no file and
// no environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Timezone:            "Europe/Rome",
		TrashFolder:         "Cestino",
		EditedMarker:        "modificato",
		ImageExt:            append([]string(nil), DefaultImageExtensions...),
		VideoExt:            append([]string(nil), DefaultVideoExtensions...),
		OtherExt:            append([]string(nil), DefaultOtherExtensions...),
		SidecarExt:          ".json",
		DivergenceThreshold: 10,
		DecodeErrorPolicy:   DecodeErrorFail,
		LogFile:             "mediarecon.log",
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
	}
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return newConfigurationError("timezone", fmt.Errorf("unknown time zone %q: %w", c.Timezone, err))
	}
	if c.DivergenceThreshold < 0 {
		return newConfigurationError("divergence_threshold", fmt.Errorf("threshold must not be negative, got %d", c.DivergenceThreshold))
	}
	switch c.DecodeErrorPolicy {
	case DecodeErrorFail, DecodeErrorSkip:
	default:
		return newConfigurationError("decode_error_policy", fmt.Errorf("unknown policy %q, expected %q or %q", c.DecodeErrorPolicy, DecodeErrorFail, DecodeErrorSkip))
	}
	if len(c.ImageExt) == 0 {
		return newConfigurationError("image_extensions", errors.New("at least one image extension is required"))
	}
	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowedExtensions is the union of image, video and other extensions.
func (c *Config) AllowedExtensions() map[string]bool {
	allowed := make(map[string]bool)
	for _, group := range [][]string{c.ImageExt, c.VideoExt, c.OtherExt} {
		for _, e := range group {
			allowed[e] = true
		}
	}
	return allowed
}
