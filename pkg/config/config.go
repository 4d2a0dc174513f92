package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "promptshop"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN = "PROMPTSHOP_DB_DSN"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	PromptPay PromptPayConfig
	Slip      SlipConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("%s is required", EnvDBDSN)
	}
	if err := cfg.PromptPay.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PROMPTSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"PROMPTSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PROMPTSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PROMPTSHOP_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"PROMPTSHOP_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"PROMPTSHOP_DB_DSN"`

	MaxOpenConns    int           `envconfig:"PROMPTSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROMPTSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROMPTSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROMPTSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PROMPTSHOP_REDIS_URL"`
	Address      string        `envconfig:"PROMPTSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"PROMPTSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROMPTSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROMPTSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROMPTSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROMPTSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROMPTSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROMPTSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PromptPayConfig identifies the merchant the payment QR codes resolve to.
type PromptPayConfig struct {
	MerchantPhone string `envconfig:"PROMPTSHOP_PROMPTPAY_PHONE" required:"true"`

	// Bill-payment QR codes target the shop's bank account instead of the
	// PromptPay phone number. The account must be PromptPay-registered.
	BillAccountNumber string `envconfig:"PROMPTSHOP_BILL_ACCOUNT_NUMBER"`
	BillBankCode      string `envconfig:"PROMPTSHOP_BILL_BANK_CODE" default:"004"`
	BillAccountName   string `envconfig:"PROMPTSHOP_BILL_ACCOUNT_NAME"`

	ExpiryWindow time.Duration `envconfig:"PROMPTSHOP_PAYMENT_EXPIRY_WINDOW" default:"15m"`
	QRImageSize  int           `envconfig:"PROMPTSHOP_QR_IMAGE_SIZE" default:"256"`
}

func (p PromptPayConfig) validate() error {
	if p.ExpiryWindow <= 0 {
		return fmt.Errorf("payment expiry window must be positive")
	}
	if p.QRImageSize <= 0 {
		return fmt.Errorf("qr image size must be positive")
	}
	return nil
}

// SlipConfig bounds the slip verification pipeline.
type SlipConfig struct {
	FetchTimeout  time.Duration `envconfig:"PROMPTSHOP_SLIP_FETCH_TIMEOUT" default:"10s"`
	MaxImageBytes int64         `envconfig:"PROMPTSHOP_SLIP_MAX_IMAGE_BYTES" default:"5242880"`
	OCRLanguages  string        `envconfig:"PROMPTSHOP_SLIP_OCR_LANGUAGES" default:"tha+eng"`
	TempDir       string        `envconfig:"PROMPTSHOP_SLIP_TEMP_DIR"`
	VerifyLockTTL time.Duration `envconfig:"PROMPTSHOP_SLIP_VERIFY_LOCK_TTL" default:"30s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PROMPTSHOP_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"PROMPTSHOP_CRON_LOCK_TTL" default:"50s"`
}
