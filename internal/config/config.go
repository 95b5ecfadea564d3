// Package config loads the service settings from defaults, an optional
// pbsbridge.yaml and PBSBRIDGE_* environment variables, in that order of
// precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const Name = "pbsbridge"

// EnvKeyReplacer maps keys onto environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Keys.
const (
	ServerAddr           = "server.addr"
	ServerEngine         = "server.engine"
	PlayerOrigin         = "player.origin"
	PlayerHistorySize    = "player.history_size"
	PlayerSampleInterval = "player.sample_interval"
	PlayerQueryTimeout   = "player.query_timeout"
	ResumeBackend        = "resume.backend"
	ResumeBoltPath       = "resume.bolt_path"
	ResumeRedisAddr      = "resume.redis_addr"
	ResumeRedisTTL       = "resume.redis_ttl"
	AnalyticsEnabled     = "analytics.enabled"
	AnalyticsCategory    = "analytics.category"
	AnalyticsLabel       = "analytics.label"
	AnalyticsMetric      = "analytics.metric"
	LogLevel             = "log.level"
	LogJSON              = "log.json"
	TelemetryEnabled     = "telemetry.enabled"
	TelemetryEndpoint    = "telemetry.endpoint"
	TelemetryInsecure    = "telemetry.insecure"
	TelemetryInterval    = "telemetry.interval"
)

const (
	EngineHertz = "hertz"
	EngineEcho  = "echo"

	BackendNone  = "none"
	BackendBolt  = "bolt"
	BackendRedis = "redis"
)

// Field is one setting and its default.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env is the environment variable that overrides the field.
func (f Field) Env() string {
	return strings.ToUpper(Name + "_" + EnvKeyReplacer.Replace(f.Key))
}

var Defaults = []Field{
	{ServerAddr, ":8080", "listen address"},
	{ServerEngine, EngineHertz, "HTTP server: hertz or echo"},
	{PlayerOrigin, "https://player.pbs.org", "trusted player origin"},
	{PlayerHistorySize, 25, "messages kept per direction"},
	{PlayerSampleInterval, time.Second, "position sampling interval"},
	{PlayerQueryTimeout, 2 * time.Second, "timeout for player queries"},
	{ResumeBackend, BackendNone, "resume store: none, bolt or redis"},
	{ResumeBoltPath, "pbsbridge.db", "bbolt file for the resume store"},
	{ResumeRedisAddr, "localhost:6379", "redis address for the resume store"},
	{ResumeRedisTTL, 30 * 24 * time.Hour, "how long redis keeps a position"},
	{AnalyticsEnabled, true, "report MediaStart and MediaStop hits"},
	{AnalyticsCategory, "Video", "hit category"},
	{AnalyticsLabel, "", "hit label, the video id when empty"},
	{AnalyticsMetric, "metric1", "metric carrying secondsReached"},
	{LogLevel, "info", "log level"},
	{LogJSON, false, "log JSON instead of console lines"},
	{TelemetryEnabled, false, "export media metrics over OTLP"},
	{TelemetryEndpoint, "localhost:4317", "OTLP gRPC endpoint"},
	{TelemetryInsecure, true, "use a plaintext OTLP connection"},
	{TelemetryInterval, 15 * time.Second, "metric export interval"},
}

type Config struct {
	Server    Server    `mapstructure:"server"`
	Player    Player    `mapstructure:"player"`
	Resume    Resume    `mapstructure:"resume"`
	Analytics Analytics `mapstructure:"analytics"`
	Log       Log       `mapstructure:"log"`
	Telemetry Telemetry `mapstructure:"telemetry"`
}

type Server struct {
	Addr   string `mapstructure:"addr"`
	Engine string `mapstructure:"engine"`
}

type Player struct {
	Origin         string        `mapstructure:"origin"`
	HistorySize    int           `mapstructure:"history_size"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

type Resume struct {
	Backend   string        `mapstructure:"backend"`
	BoltPath  string        `mapstructure:"bolt_path"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisTTL  time.Duration `mapstructure:"redis_ttl"`
}

type Analytics struct {
	Enabled  bool   `mapstructure:"enabled"`
	Category string `mapstructure:"category"`
	Label    string `mapstructure:"label"`
	Metric   string `mapstructure:"metric"`
}

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type Telemetry struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Insecure bool          `mapstructure:"insecure"`
	Interval time.Duration `mapstructure:"interval"`
}

// New returns a viper instance reading from fs with defaults and environment
// bindings in place.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/" + Name)

	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	for _, field := range Defaults {
		v.SetDefault(field.Key, field.Value)
	}
	return v
}

// Load reads file, or searches the config paths when file is empty. A
// missing searched file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if !lo.Contains([]string{EngineHertz, EngineEcho}, c.Server.Engine) {
		return fmt.Errorf("%s: unknown engine %q", ServerEngine, c.Server.Engine)
	}
	if !lo.Contains([]string{BackendNone, BackendBolt, BackendRedis}, c.Resume.Backend) {
		return fmt.Errorf("%s: unknown backend %q", ResumeBackend, c.Resume.Backend)
	}
	if c.Player.Origin == "" {
		return fmt.Errorf("%s is required", PlayerOrigin)
	}
	if c.Player.HistorySize <= 0 {
		return fmt.Errorf("%s must be positive", PlayerHistorySize)
	}
	return nil
}
