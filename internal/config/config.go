// Package config resolves the service configuration once at startup:
// defaults, then an optional YAML file, then environment variables
// (dots become underscores, e.g. GATEWAY_TEST_SALT_KEY).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/natureofthedivine/storefront/internal/checksum"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Public    PublicConfig    `mapstructure:"public"`
	DB        DBConfig        `mapstructure:"db"`
	DynamoDB  DynamoDBConfig  `mapstructure:"dynamodb"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Shipping  ShippingConfig  `mapstructure:"shipping"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PublicConfig struct {
	// BaseURL is where the gateway sends callbacks and redirects the payer.
	BaseURL string `mapstructure:"base_url"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type DynamoDBConfig struct {
	Table string `mapstructure:"table"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type GatewayConfig struct {
	Production bool          `mapstructure:"production"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Test       GatewayKeys   `mapstructure:"test"`
	Live       GatewayKeys   `mapstructure:"live"`
}

// GatewayKeys is one environment's merchant credentials.
type GatewayKeys struct {
	Host       string `mapstructure:"host"`
	MerchantID string `mapstructure:"merchant_id"`
	SaltKey    string `mapstructure:"salt_key"`
	SaltIndex  int    `mapstructure:"salt_index"`
}

func (k GatewayKeys) Salt() checksum.Salt {
	return checksum.Salt{Key: k.SaltKey, Index: k.SaltIndex}
}

type PricingConfig struct {
	GeoURL    string        `mapstructure:"geo_url"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type ShippingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	PickupPostcode string        `mapstructure:"pickup_postcode"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type ReconcileConfig struct {
	Window      time.Duration `mapstructure:"window"`
	Concurrency int           `mapstructure:"concurrency"`
}

type ArchiveConfig struct {
	S3Bucket string `mapstructure:"s3_bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("public.base_url", "http://localhost:8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "storefront.db")
	v.SetDefault("dynamodb.table", "storefront")
	v.SetDefault("aws.region", "ap-south-1")

	v.SetDefault("gateway.production", false)
	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("gateway.test.host", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("gateway.test.merchant_id", "PGTESTPAYUAT")
	v.SetDefault("gateway.test.salt_key", "099eb0cd-02cf-4e2a-8aca-3e6c6aff0399")
	v.SetDefault("gateway.test.salt_index", 1)
	v.SetDefault("gateway.live.host", "https://api.phonepe.com/apis/hermes")
	v.SetDefault("gateway.live.merchant_id", "")
	v.SetDefault("gateway.live.salt_key", "")
	v.SetDefault("gateway.live.salt_index", 1)

	v.SetDefault("pricing.geo_url", "https://ipapi.co")
	v.SetDefault("pricing.cache_ttl", time.Hour)
	v.SetDefault("pricing.cache_size", 1024)
	v.SetDefault("pricing.timeout", 3*time.Second)

	v.SetDefault("shipping.base_url", "https://apiv2.shiprocket.in/v1/external")
	v.SetDefault("shipping.token", "")
	v.SetDefault("shipping.pickup_postcode", "110001")
	v.SetDefault("shipping.timeout", 15*time.Second)

	v.SetDefault("admin.token", "")
	v.SetDefault("reconcile.window", 30*time.Minute)
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("archive.s3_bucket", "")
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// PORT is honoured for platforms that only inject a port number.
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Public.BaseURL = strings.TrimRight(cfg.Public.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ActiveGateway returns the key set selected by gateway.production.
func (c *Config) ActiveGateway() GatewayKeys {
	if c.Gateway.Production {
		return c.Gateway.Live
	}
	return c.Gateway.Test
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "bolt", "dynamodb":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	keys := c.ActiveGateway()
	if keys.Host == "" || keys.MerchantID == "" || keys.SaltKey == "" {
		return fmt.Errorf("gateway host, merchant_id and salt_key are required")
	}
	if keys.SaltIndex <= 0 {
		return fmt.Errorf("gateway salt_index must be positive")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	return nil
}
