/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML config file.
const FileEnv = "OCEANCAM_CONFIG"

// Hardware modes.
const (
	HardwareSimulated = "simulated"
	HardwarePi        = "pi"
)

// SensorCommand maps a helper program to the fields its output carries.
type SensorCommand struct {
	Name    string        `yaml:"name" env:"NAME"`
	Fields  []string      `yaml:"fields" env:"FIELDS" envSeparator:","`
	Command []string      `yaml:"command" env:"COMMAND" envSeparator:" "`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Config covers process level configuration: defaults, then the YAML file,
// then environment variables.
type Config struct {
	Environment string `yaml:"environment" env:"OCEANCAM_ENV"`

	Camera struct {
		Name     string `yaml:"name" env:"OCEANCAM_CAMERA_NAME"`
		UID      string `yaml:"uid" env:"OCEANCAM_CAMERA_UID"`
		Timezone string `yaml:"timezone" env:"OCEANCAM_TIMEZONE"`
	} `yaml:"camera"`

	Paths struct {
		MediaDir      string `yaml:"media_dir" env:"OCEANCAM_MEDIA_DIR"`
		ArchiveDir    string `yaml:"archive_dir" env:"OCEANCAM_ARCHIVE_DIR"`
		SchedulePath  string `yaml:"schedule" env:"OCEANCAM_SCHEDULE_PATH"`
		SensorLogPath string `yaml:"sensor_log" env:"OCEANCAM_SENSOR_LOG_PATH"`
		LogFile       string `yaml:"log_file" env:"OCEANCAM_LOG_FILE"`
		RequireMount  bool   `yaml:"require_mount" env:"OCEANCAM_REQUIRE_MOUNT"`
		MinFreeMB     uint64 `yaml:"min_free_mb" env:"OCEANCAM_MIN_FREE_MB"`
	} `yaml:"paths"`

	Loop struct {
		PollInterval      time.Duration `yaml:"poll_interval" env:"OCEANCAM_POLL_INTERVAL"`
		SensorInterval    time.Duration `yaml:"sensor_interval" env:"OCEANCAM_SENSOR_INTERVAL"`
		ShutdownThreshold time.Duration `yaml:"shutdown_threshold" env:"OCEANCAM_SHUTDOWN_THRESHOLD"`
		WakeLead          time.Duration `yaml:"wake_lead" env:"OCEANCAM_WAKE_LEAD"`
		ShutdownDelay     time.Duration `yaml:"shutdown_delay" env:"OCEANCAM_SHUTDOWN_DELAY"`
		FaultCooldown     time.Duration `yaml:"fault_cooldown" env:"OCEANCAM_FAULT_COOLDOWN"`
		WiperSweeps       int           `yaml:"wiper_sweeps" env:"OCEANCAM_WIPER_SWEEPS"`
		DisablePowerDown  bool          `yaml:"disable_power_down" env:"OCEANCAM_DISABLE_POWER_DOWN"`
	} `yaml:"loop"`

	HTTP struct {
		Bind           string `yaml:"bind" env:"OCEANCAM_HTTP_BIND"`
		Port           int    `yaml:"port" env:"OCEANCAM_HTTP_PORT"`
		JWTSigningKey  string `yaml:"jwt_signing_key" env:"OCEANCAM_JWT_SIGNING_KEY"`
		MetricsEnabled bool   `yaml:"metrics" env:"OCEANCAM_METRICS_ENABLED"`
	} `yaml:"http"`

	Tracing struct {
		Enabled      bool    `yaml:"enabled" env:"OCEANCAM_TRACING_ENABLED"`
		OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OCEANCAM_OTLP_ENDPOINT"`
		SampleRate   float64 `yaml:"sample_rate" env:"OCEANCAM_TRACING_SAMPLE_RATE"`
	} `yaml:"tracing"`

	Upload struct {
		Backend string `yaml:"backend" env:"OCEANCAM_UPLOAD_BACKEND"`
		Prefix  string `yaml:"prefix" env:"OCEANCAM_UPLOAD_PREFIX"`

		S3Bucket       string `yaml:"s3_bucket" env:"OCEANCAM_S3_BUCKET"`
		S3Region       string `yaml:"s3_region" env:"OCEANCAM_S3_REGION"`
		S3Endpoint     string `yaml:"s3_endpoint" env:"OCEANCAM_S3_ENDPOINT"`
		S3AccessKeyID  string `yaml:"s3_access_key_id" env:"OCEANCAM_S3_ACCESS_KEY_ID"`
		S3SecretKey    string `yaml:"s3_secret_access_key" env:"OCEANCAM_S3_SECRET_ACCESS_KEY"`
		S3UsePathStyle bool   `yaml:"s3_use_path_style" env:"OCEANCAM_S3_USE_PATH_STYLE"`

		MinIOEndpoint  string `yaml:"minio_endpoint" env:"OCEANCAM_MINIO_ENDPOINT"`
		MinIOAccessKey string `yaml:"minio_access_key" env:"OCEANCAM_MINIO_ACCESS_KEY"`
		MinIOSecretKey string `yaml:"minio_secret_key" env:"OCEANCAM_MINIO_SECRET_KEY"`
		MinIOBucket    string `yaml:"minio_bucket" env:"OCEANCAM_MINIO_BUCKET"`
		MinIOUseSSL    bool   `yaml:"minio_use_ssl" env:"OCEANCAM_MINIO_USE_SSL"`

		FSDir string `yaml:"fs_dir" env:"OCEANCAM_UPLOAD_FS_DIR"`
	} `yaml:"upload"`

	Database struct {
		Backend string `yaml:"backend" env:"OCEANCAM_DB_BACKEND"`
		DSN     string `yaml:"dsn" env:"OCEANCAM_DB_DSN"`
	} `yaml:"database"`

	Events struct {
		MQTT struct {
			Broker      string `yaml:"broker" env:"OCEANCAM_MQTT_BROKER"`
			Username    string `yaml:"username" env:"OCEANCAM_MQTT_USERNAME"`
			Password    string `yaml:"password" env:"OCEANCAM_MQTT_PASSWORD"`
			TopicPrefix string `yaml:"topic_prefix" env:"OCEANCAM_MQTT_TOPIC_PREFIX"`
		} `yaml:"mqtt"`
		NATS struct {
			URL           string `yaml:"url" env:"OCEANCAM_NATS_URL"`
			Token         string `yaml:"token" env:"OCEANCAM_NATS_TOKEN"`
			SubjectPrefix string `yaml:"subject_prefix" env:"OCEANCAM_NATS_SUBJECT_PREFIX"`
		} `yaml:"nats"`
		Redis struct {
			Addr          string `yaml:"addr" env:"OCEANCAM_REDIS_ADDR"`
			Password      string `yaml:"password" env:"OCEANCAM_REDIS_PASSWORD"`
			DB            int    `yaml:"db" env:"OCEANCAM_REDIS_DB"`
			ChannelPrefix string `yaml:"channel_prefix" env:"OCEANCAM_REDIS_CHANNEL_PREFIX"`
		} `yaml:"redis"`
	} `yaml:"events"`

	Hardware struct {
		Mode         string          `yaml:"mode" env:"OCEANCAM_HARDWARE"`
		StillBinary  string          `yaml:"still_binary" env:"OCEANCAM_STILL_BINARY"`
		VideoBinary  string          `yaml:"video_binary" env:"OCEANCAM_VIDEO_BINARY"`
		PWMChip      string          `yaml:"pwm_chip" env:"OCEANCAM_PWM_CHIP"`
		LightChannel int             `yaml:"light_channel" env:"OCEANCAM_LIGHT_CHANNEL"`
		WiperChannel int             `yaml:"wiper_channel" env:"OCEANCAM_WIPER_CHANNEL"`
		PowerScript  string          `yaml:"power_script" env:"OCEANCAM_POWER_SCRIPT"`
		GPSDevice    string          `yaml:"gps_device" env:"OCEANCAM_GPS_DEVICE"`
		Sensors      []SensorCommand `yaml:"sensors" envPrefix:"OCEANCAM_SENSOR"`
	} `yaml:"hardware"`

	LegacyEnvWarnings []string `yaml:"-"`
}

// Defaults returns a configuration for a bench run with simulated hardware.
func Defaults() *Config {
	cfg := &Config{Environment: "development"}
	cfg.Camera.Name = "oocam"
	cfg.Camera.UID = "undefined"

	cfg.Paths.MediaDir = "/media/pi/OPENOCEANCA"
	cfg.Paths.SchedulePath = "/home/pi/openoceancamera/schedule.json"
	cfg.Paths.SensorLogPath = "sensor_log.jsonl"
	cfg.Paths.MinFreeMB = 512

	cfg.Loop.PollInterval = time.Second
	cfg.Loop.SensorInterval = 10 * time.Second
	cfg.Loop.ShutdownThreshold = 10 * time.Minute
	cfg.Loop.WakeLead = 2 * time.Minute
	cfg.Loop.ShutdownDelay = 2 * time.Minute
	cfg.Loop.FaultCooldown = 5 * time.Minute
	cfg.Loop.WiperSweeps = 1

	cfg.HTTP.Bind = "0.0.0.0"
	cfg.HTTP.Port = 8000
	cfg.HTTP.MetricsEnabled = true

	cfg.Tracing.OTLPEndpoint = "localhost:4317"
	cfg.Tracing.SampleRate = 1.0

	cfg.Upload.Backend = "none"
	cfg.Upload.S3Bucket = "oocam-store"
	cfg.Upload.S3Region = "us-east-1"

	cfg.Database.Backend = "sqlite"

	cfg.Events.MQTT.TopicPrefix = "oceancam"
	cfg.Events.NATS.SubjectPrefix = "oceancam"
	cfg.Events.Redis.ChannelPrefix = "oceancam"

	cfg.Hardware.Mode = HardwareSimulated
	cfg.Hardware.StillBinary = "libcamera-still"
	cfg.Hardware.VideoBinary = "libcamera-vid"
	cfg.Hardware.PWMChip = "/sys/class/pwm/pwmchip0"
	cfg.Hardware.LightChannel = 0
	cfg.Hardware.WiperChannel = 1
	cfg.Hardware.PowerScript = "/home/pi/wittypi/wittycam.sh"
	return cfg
}

// Load applies defaults, the YAML file named by OCEANCAM_CONFIG (if any) and
// environment overrides, then validates the result.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	applyLegacyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Camera.Name) == "" {
		errs = append(errs, errors.New("camera name must not be empty"))
	}
	if c.Paths.MediaDir == "" {
		errs = append(errs, errors.New("media dir must be set"))
	}
	if c.Loop.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Loop.WakeLead >= c.Loop.ShutdownThreshold {
		errs = append(errs, fmt.Errorf("wake lead %v must be shorter than shutdown threshold %v", c.Loop.WakeLead, c.Loop.ShutdownThreshold))
	}
	switch c.Hardware.Mode {
	case HardwareSimulated, HardwarePi:
	default:
		errs = append(errs, fmt.Errorf("unsupported hardware mode %q", c.Hardware.Mode))
	}
	switch c.Database.Backend {
	case "sqlite", "postgres", "mysql", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported database backend %q", c.Database.Backend))
	}
	if c.Database.Backend != "none" && c.Database.Backend != "sqlite" && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("OCEANCAM_DB_DSN must be provided for %s", c.Database.Backend))
	}
	switch c.Upload.Backend {
	case "none":
	case "s3":
		if c.Upload.S3Bucket == "" {
			errs = append(errs, errors.New("s3 upload requires a bucket"))
		}
	case "minio":
		if c.Upload.MinIOEndpoint == "" || c.Upload.MinIOBucket == "" {
			errs = append(errs, errors.New("minio upload requires endpoint and bucket"))
		}
	case "fs":
		if c.Upload.FSDir == "" {
			errs = append(errs, errors.New("fs upload requires a directory"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported upload backend %q", c.Upload.Backend))
	}
	if c.Timezone() == nil {
		errs = append(errs, fmt.Errorf("unknown timezone %q", c.Camera.Timezone))
	}
	if strings.EqualFold(c.Environment, "production") && c.HTTP.JWTSigningKey == "" {
		errs = append(errs, errors.New("OCEANCAM_JWT_SIGNING_KEY must be set in production"))
	}
	return errors.Join(errs...)
}

// Timezone resolves the schedule timezone. Empty means local time; nil means
// the name is unknown.
func (c *Config) Timezone() *time.Location {
	if c.Camera.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Camera.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// ArchiveDir is where upload archives are built.
func (c *Config) ArchiveDir() string {
	if c.Paths.ArchiveDir != "" {
		return c.Paths.ArchiveDir
	}
	return c.Paths.MediaDir
}

// HTTPAddr is the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Bind, c.HTTP.Port)
}

// applyLegacyEnv honours the keys older camera images export when the new key
// is unset.
func applyLegacyEnv(c *Config) {
	if os.Getenv("OCEANCAM_CAMERA_UID") == "" {
		if v := os.Getenv("CAMERA_UID"); v != "" {
			c.Camera.UID = v
		}
	}
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"CAMERA_UID":      "use OCEANCAM_CAMERA_UID",
		"JWT_SIGNING_KEY": "use OCEANCAM_JWT_SIGNING_KEY",
		"TRACING_ENABLED": "use OCEANCAM_TRACING_ENABLED",
		"OTLP_ENDPOINT":   "use OCEANCAM_OTLP_ENDPOINT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}
