// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые драйверы хранилища.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config - корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Ops      OpsConfig     `yaml:"ops"`
	GRPC     GRPCConfig    `yaml:"grpc"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig - таймауты сервиса.
type TimeoutConfig struct {
	// Service - дедлайн на обработку одного API-запроса.
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	// Shutdown - время на graceful shutdown всех листенеров.
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig - сетевые настройки API-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// OpsConfig - служебный листенер: /livez, /healthz, /metrics.
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"8081"`
}

// GRPCConfig - опциональный gRPC-листенер со стандартным health-сервисом.
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled" env:"GRPC_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port    string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c OpsConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c GRPCConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
// Секреты обязательны: значения по умолчанию для них нет.
type AuthConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"JWT_SECRET" env-required:"true"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"1h"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"AUTH_ISSUER" env-default:"todo-auth"`
	// StrictRefresh - refresh-токен принимается, только если совпадает со слотом аккаунта.
	StrictRefresh  bool                 `yaml:"strict_refresh" env:"STRICT_REFRESH" env-default:"false"`
	BootstrapAdmin BootstrapAdminConfig `yaml:"bootstrap_admin"`
}

// BootstrapAdminConfig - учётная запись администратора, создаваемая при старте.
// Пустой Username отключает bootstrap.
type BootstrapAdminConfig struct {
	Username string `yaml:"username" env:"BOOTSTRAP_ADMIN_USERNAME"`
	Email    string `yaml:"email" env:"BOOTSTRAP_ADMIN_EMAIL"`
	Password string `yaml:"password" env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// Enabled сообщает, задан ли bootstrap-администратор.
func (b BootstrapAdminConfig) Enabled() bool {
	return b.Username != ""
}

// DBConfig - настройки хранилища учётных записей.
type DBConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"mongo"`
	URL    string `yaml:"url" env:"DATABASE_URL"`
}

// Validate проверяет инварианты, которые не выражаются тегами cleanenv.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AccessSecret == "" {
		errs = append(errs, errors.New("auth.access_secret is empty"))
	}

	if c.Auth.RefreshSecret == "" {
		errs = append(errs, errors.New("auth.refresh_secret is empty"))
	}

	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth.access_secret and auth.refresh_secret must differ"))
	}

	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.access_token_ttl must be positive, got %s", c.Auth.AccessTokenTTL))
	}

	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.refresh_token_ttl must be positive, got %s", c.Auth.RefreshTokenTTL))
	}

	switch c.DB.Driver {
	case DriverMongo, DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, fmt.Errorf("db.url is required for driver %q", c.DB.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not supported", c.DB.Driver))
	}

	if c.Timeouts.Service <= 0 {
		errs = append(errs, fmt.Errorf("timeouts.service must be positive, got %s", c.Timeouts.Service))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// MustLoad - обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх YAML,
// затем выполняется Validate.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
