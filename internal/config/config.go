package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/mcoot/dicefunnel/internal/api"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
	"github.com/mcoot/dicefunnel/internal/services/credit"
	"github.com/mcoot/dicefunnel/internal/services/dispatch"
	"github.com/mcoot/dicefunnel/internal/services/identity"
	"github.com/mcoot/dicefunnel/internal/services/loyalty"
	"github.com/mcoot/dicefunnel/internal/services/otp"
	"github.com/mcoot/dicefunnel/internal/services/reward"
	"github.com/mcoot/dicefunnel/internal/services/sms"
	"github.com/mcoot/dicefunnel/internal/storage/postgres"
	redisstorage "github.com/mcoot/dicefunnel/internal/storage/redis"
)

// EnvPrefix is prepended to every environment override,
// e.g. DICEFUNNEL_LOYALTY_ACCESS_TOKEN for loyalty.access_token
const EnvPrefix = "DICEFUNNEL"

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// LogConfig controls the application logger
type LogConfig struct {
	Level string
}

// SlogLevel converts the configured level name
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string
	Redis    redisstorage.Config
	Postgres postgres.Config
}

// AdminConfig protects the dashboard and admin endpoints
type AdminConfig struct {
	APIKey string
}

// Config aggregates the configuration of every component
type Config struct {
	Server   api.ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Campaign campaign.Config
	OTP      otp.Config
	Identity identity.Config
	Reward   reward.Config
	Loyalty  loyalty.Config
	Credit   credit.Config
	SMS      sms.Config
	Dispatch dispatch.Config
	Admin    AdminConfig
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server:   api.DefaultServerConfig(),
		Log:      LogConfig{Level: "info"},
		Storage:  StorageConfig{Type: StorageMemory, Redis: redisstorage.DefaultConfig(), Postgres: postgres.DefaultConfig()},
		Campaign: campaign.DefaultConfig(),
		OTP:      otp.DefaultConfig(),
		Identity: identity.DefaultConfig(),
		Reward:   reward.DefaultConfig(),
		Loyalty:  loyalty.DefaultConfig(),
		Credit:   credit.DefaultConfig(),
		SMS:      sms.DefaultConfig(),
		Dispatch: dispatch.DefaultConfig(),
	}
}

// Load reads configuration from path (or ./config.yaml when path is empty
// and the file exists), then applies DICEFUNNEL_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.redis_url", d.Storage.Redis.URL)
	v.SetDefault("storage.postgres_dsn", d.Storage.Postgres.DSN)

	v.SetDefault("session.ttl", d.Campaign.SessionTTL)
	v.SetDefault("credit.ladder", []string(d.Campaign.Ladder))

	v.SetDefault("otp.length", d.OTP.Length)
	v.SetDefault("otp.validity", d.OTP.Validity)
	v.SetDefault("otp.debug", d.Campaign.DebugOTP)
	v.SetDefault("otp.message_template", d.OTP.MessageTemplate)

	v.SetDefault("identity.digest_key", d.Identity.DigestKey)

	v.SetDefault("reward.weights", tierMapToStrings(d.Reward.Weights))
	v.SetDefault("reward.percentages", tierMapToStrings(d.Reward.Percentages))
	v.SetDefault("reward.code_prefix", d.Reward.CodePrefix)

	v.SetDefault("loyalty.store_domain", d.Loyalty.StoreDomain)
	v.SetDefault("loyalty.access_token", d.Loyalty.AccessToken)
	v.SetDefault("loyalty.api_version", d.Loyalty.APIVersion)
	v.SetDefault("loyalty.timeout", d.Loyalty.Timeout)
	v.SetDefault("loyalty.country_code", d.Loyalty.CountryCode)
	v.SetDefault("loyalty.redemption_base_url", d.Loyalty.RedemptionBaseURL)

	v.SetDefault("credit.endpoint", d.Credit.Endpoint)
	v.SetDefault("credit.api_key", d.Credit.APIKey)
	v.SetDefault("credit.amount", d.Credit.Amount.String())
	v.SetDefault("credit.comment", d.Credit.Comment)
	v.SetDefault("credit.cooldown", d.Credit.Cooldown)
	v.SetDefault("credit.timeout", d.Credit.Timeout)

	v.SetDefault("sms.endpoint", d.SMS.Endpoint)
	v.SetDefault("sms.user", d.SMS.User)
	v.SetDefault("sms.password", d.SMS.Password)
	v.SetDefault("sms.sender_id", d.SMS.SenderID)
	v.SetDefault("sms.template_id", d.SMS.TemplateID)
	v.SetDefault("sms.entity_id", d.SMS.EntityID)
	v.SetDefault("sms.channel", d.SMS.Channel)
	v.SetDefault("sms.route", d.SMS.Route)
	v.SetDefault("sms.timeout", d.SMS.Timeout)

	v.SetDefault("dispatch.task_timeout", d.Dispatch.TaskTimeout)

	v.SetDefault("admin.api_key", d.Admin.APIKey)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()

	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")

	cfg.Log.Level = v.GetString("log.level")

	cfg.Storage.Type = strings.ToLower(v.GetString("storage.type"))
	cfg.Storage.Redis.URL = v.GetString("storage.redis_url")
	cfg.Storage.Postgres.DSN = v.GetString("storage.postgres_dsn")

	cfg.Campaign.SessionTTL = v.GetDuration("session.ttl")
	cfg.Campaign.DebugOTP = v.GetBool("otp.debug")
	cfg.Campaign.Ladder = model.Ladder(v.GetStringSlice("credit.ladder"))

	cfg.OTP.Length = v.GetInt("otp.length")
	cfg.OTP.Validity = v.GetDuration("otp.validity")
	cfg.OTP.MessageTemplate = v.GetString("otp.message_template")

	cfg.Identity.DigestKey = v.GetString("identity.digest_key")

	weights, err := tierMap(v.Get("reward.weights"))
	if err != nil {
		return nil, fmt.Errorf("reward.weights: %w", err)
	}
	percentages, err := tierMap(v.Get("reward.percentages"))
	if err != nil {
		return nil, fmt.Errorf("reward.percentages: %w", err)
	}
	cfg.Reward.Weights = weights
	cfg.Reward.Percentages = percentages
	cfg.Reward.CodePrefix = v.GetString("reward.code_prefix")

	cfg.Loyalty.StoreDomain = v.GetString("loyalty.store_domain")
	cfg.Loyalty.AccessToken = v.GetString("loyalty.access_token")
	cfg.Loyalty.APIVersion = v.GetString("loyalty.api_version")
	cfg.Loyalty.Timeout = v.GetDuration("loyalty.timeout")
	cfg.Loyalty.CountryCode = v.GetString("loyalty.country_code")
	cfg.Loyalty.RedemptionBaseURL = v.GetString("loyalty.redemption_base_url")

	amount, err := decimal.NewFromString(v.GetString("credit.amount"))
	if err != nil {
		return nil, fmt.Errorf("credit.amount: %w", err)
	}
	cfg.Credit.Endpoint = v.GetString("credit.endpoint")
	cfg.Credit.APIKey = v.GetString("credit.api_key")
	cfg.Credit.Amount = amount
	cfg.Credit.Comment = v.GetString("credit.comment")
	cfg.Credit.Cooldown = v.GetDuration("credit.cooldown")
	cfg.Credit.Timeout = v.GetDuration("credit.timeout")

	cfg.SMS.Endpoint = v.GetString("sms.endpoint")
	cfg.SMS.User = v.GetString("sms.user")
	cfg.SMS.Password = v.GetString("sms.password")
	cfg.SMS.SenderID = v.GetString("sms.sender_id")
	cfg.SMS.TemplateID = v.GetString("sms.template_id")
	cfg.SMS.EntityID = v.GetString("sms.entity_id")
	cfg.SMS.Channel = v.GetString("sms.channel")
	cfg.SMS.Route = v.GetString("sms.route")
	cfg.SMS.Timeout = v.GetDuration("sms.timeout")

	cfg.Dispatch.TaskTimeout = v.GetDuration("dispatch.task_timeout")

	cfg.Admin.APIKey = v.GetString("admin.api_key")

	return cfg, nil
}

// tierMap accepts a YAML mapping or, from the environment, a JSON object
// such as {"1":10,"6":90}
func tierMap(raw any) (map[int]int, error) {
	m, err := cast.ToStringMapIntE(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(m))
	for k, val := range m {
		tier, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("tier %q is not a number", k)
		}
		out[tier] = val
	}
	return out, nil
}

func tierMapToStrings(m map[int]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return out
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Type {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		problems = append(problems, fmt.Sprintf("storage.type must be memory, redis or postgres, got %q", c.Storage.Type))
	}
	if c.Storage.Type != StorageMemory && c.Identity.DigestKey == "" {
		problems = append(problems, "identity.digest_key is required for persistent storage")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 8 {
		problems = append(problems, fmt.Sprintf("otp.length must be between 4 and 8, got %d", c.OTP.Length))
	}
	if c.OTP.Validity <= 0 {
		problems = append(problems, "otp.validity must be positive")
	}
	if c.Campaign.SessionTTL <= 0 {
		problems = append(problems, "session.ttl must be positive")
	}
	if len(c.Campaign.Ladder) == 0 {
		problems = append(problems, "credit.ladder must have at least one tag")
	}
	if c.Credit.Amount.IsNegative() {
		problems = append(problems, "credit.amount must not be negative")
	}
	if err := c.Reward.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}
