package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Auth struct {
		TokenSecret string `mapstructure:"TOKEN_SECRET"`
	} `mapstructure:"AUTH"`
	Webhook struct {
		PaymentSecret string `mapstructure:"PAYMENT_SECRET"`
	} `mapstructure:"WEBHOOK"`
	Exchange struct {
		StartingCredits        int64  `mapstructure:"STARTING_CREDITS"`
		DefaultRefreshSeconds  int    `mapstructure:"DEFAULT_REFRESH_SECONDS"`
		DisabledRefreshSeconds int    `mapstructure:"DISABLED_REFRESH_SECONDS"`
		SafeRefreshSeconds     int    `mapstructure:"SAFE_REFRESH_SECONDS"`
		CandidateWindow        int    `mapstructure:"CANDIDATE_WINDOW"`
		AllowSelfClicks        bool   `mapstructure:"ALLOW_SELF_CLICKS"`
		OwnerEmail             string `mapstructure:"OWNER_EMAIL"`
	} `mapstructure:"EXCHANGE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	applyDefaults(&cfg)

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.Auth.TokenSecret = get("auth_token_secret")
		cfg.Webhook.PaymentSecret = get("webhook_payment_secret")
	}

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Exchange.StartingCredits == 0 {
		cfg.Exchange.StartingCredits = 10
	}
	if cfg.Exchange.DefaultRefreshSeconds == 0 {
		cfg.Exchange.DefaultRefreshSeconds = 30
	}
	if cfg.Exchange.DisabledRefreshSeconds == 0 {
		cfg.Exchange.DisabledRefreshSeconds = 600
	}
	if cfg.Exchange.SafeRefreshSeconds == 0 {
		cfg.Exchange.SafeRefreshSeconds = 60
	}
	if cfg.Exchange.CandidateWindow == 0 {
		cfg.Exchange.CandidateWindow = 20
	}
}
