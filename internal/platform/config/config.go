package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath は CONFIG_PATH が未設定の場合に読み込む設定ファイルです。
const DefaultPath = "assets/local.yaml"

// ストレージドライバ。
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Approval ApprovalConfig `yaml:"approval"`
	Currency CurrencyConfig `yaml:"currency"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig は gRPC / HTTP サーバーに関する設定です。HTTPAddr が空の場合 HTTP は起動しません。
type ServerConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	HTTPAddr           string        `yaml:"http_addr"`
	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// StorageConfig は永続化先の設定です。
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
	// IsolationLevel は読み書きトランザクションの分離レベルです。空の場合はサーバー既定値です。
	IsolationLevel string `yaml:"isolation_level"`
}

// ApprovalConfig は承認判定の方針です。値の解釈は approval パッケージが行います。
type ApprovalConfig struct {
	NoApproversPolicy string `yaml:"no_approvers_policy"`
	ThresholdMode     string `yaml:"threshold_mode"`
}

// CurrencyConfig は集計に使う会社通貨と換算レートです。
// RatesRaw は 1 USD あたりの各通貨の額で、指定した場合は既定のレート表を置き換えます。
type CurrencyConfig struct {
	CompanyCurrency string                     `yaml:"company_currency"`
	Rates           map[string]decimal.Decimal `yaml:"-"`
	RatesRaw        map[string]string          `yaml:"rates"`
}

// LogConfig はロガーの設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// PathFromEnv は CONFIG_PATH 環境変数、未設定なら DefaultPath を返します。
func PathFromEnv() string {
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return DefaultPath
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	timeout, err := parseDurationAllowEmpty(c.Server.ShutdownTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: server.shutdown_timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c.Server.ShutdownTimeout = timeout

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = StoragePostgres
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("config: storage.driver %q must be %s or %s", c.Storage.Driver, StorageMemory, StoragePostgres)
	}

	if c.Storage.Driver == StoragePostgres {
		db := &c.Database
		if err := db.validateAndNormalize(); err != nil {
			return err
		}
	}

	c.Currency.CompanyCurrency = strings.ToUpper(strings.TrimSpace(c.Currency.CompanyCurrency))
	if c.Currency.CompanyCurrency == "" {
		c.Currency.CompanyCurrency = "USD"
	}
	if len(c.Currency.CompanyCurrency) != 3 {
		return fmt.Errorf("config: currency.company_currency %q must be a 3-letter code", c.Currency.CompanyCurrency)
	}
	if err := c.Currency.parseRates(); err != nil {
		return err
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q must be json or console", c.Log.Format)
	}

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	level := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(d.IsolationLevel, "_", " "))), " ")
	switch level {
	case "", "read committed", "repeatable read", "serializable":
		d.IsolationLevel = level
	default:
		return fmt.Errorf("config: database.isolation_level %q must be read_committed, repeatable_read or serializable", d.IsolationLevel)
	}

	return nil
}

func (c *CurrencyConfig) parseRates() error {
	if len(c.RatesRaw) == 0 {
		return nil
	}
	rates := make(map[string]decimal.Decimal, len(c.RatesRaw))
	for code, raw := range c.RatesRaw {
		normalized := strings.ToUpper(strings.TrimSpace(code))
		if len(normalized) != 3 {
			return fmt.Errorf("config: currency.rates key %q must be a 3-letter code", code)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("config: currency.rates.%s: %w", normalized, err)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("config: currency.rates.%s must be positive", normalized)
		}
		rates[normalized] = rate
	}
	c.Rates = rates
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。認証情報はエスケープします。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
