package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de un servicio (lectura vía Viper desde env y opcionalmente archivo).
// Los tres binarios (inventory, orders, gateway) comparten el mismo esquema; cada uno usa las secciones que necesita.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	HTTP      HTTPConfig
	Services  ServicesConfig
	Cache     CacheConfig
	Outbox    OutboxConfig
	Stock     StockConfig
	Telemetry TelemetryConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
	Timezone string // zona para agrupar reportes por día calendario
}

// Location devuelve la zona horaria configurada (UTC si es inválida).
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	MinConns    int
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// RedisConfig backend de la caché del gateway. URL vacía = caché deshabilitada (siempre miss).
type RedisConfig struct {
	URL       string
	DB        int
	Namespace string
}

// JWTConfig configuración de JWT (solo verificación; la emisión es externa).
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServicesConfig direcciones de los servicios pares y credencial interna compartida.
type ServicesConfig struct {
	InventoryURL string
	OrdersURL    string
	UsersURL     string
	InternalKey  string
	CallTimeout  time.Duration
}

// CacheConfig TTLs por volatilidad del recurso.
type CacheConfig struct {
	VolatileTTL  time.Duration // stock, movimientos, pedidos, reportes
	ReferenceTTL time.Duration // catálogo de productos
}

// OutboxConfig relay de salidas de stock.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration
}

// StockConfig parámetros de la proyección.
type StockConfig struct {
	DefaultMinQuantity int64
}

// TelemetryConfig trazas OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string // vacío = sin exportador OTLP
	Stdout       bool
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. defaultName y defaultPort dependen del binario.
func Load(defaultName string, defaultPort int) (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", defaultName),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
			Timezone: getString(v, "APP_TIMEZONE", "UTC"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", strings.ReplaceAll(defaultName, "-", "_")),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			MaxConns:    getInt(v, "DB_MAX_CONNS", 25),
			MinConns:    getInt(v, "DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			URL:       getString(v, "REDIS_URL", ""),
			DB:        getInt(v, "REDIS_DB", 0),
			Namespace: getString(v, "CACHE_NAMESPACE", "stockflow:cache"),
		},
		JWT: JWTConfig{
			Secret: getString(v, "JWT_SECRET", ""),
			Issuer: getString(v, "JWT_ISSUER", "stockflow"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", defaultPort),
		},
		Services: ServicesConfig{
			InventoryURL: getString(v, "INVENTORY_SERVICE_URL", "http://localhost:8081"),
			OrdersURL:    getString(v, "ORDERS_SERVICE_URL", "http://localhost:8082"),
			UsersURL:     getString(v, "USERS_SERVICE_URL", "http://localhost:8083"),
			InternalKey:  getString(v, "INTERNAL_SERVICE_KEY", ""),
			CallTimeout:  getDuration(v, "SERVICE_CALL_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			VolatileTTL:  getDuration(v, "CACHE_TTL_VOLATILE", 5*time.Minute),
			ReferenceTTL: getDuration(v, "CACHE_TTL_REFERENCE", 30*time.Minute),
		},
		Outbox: OutboxConfig{
			PollInterval: getDuration(v, "OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getInt(v, "OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getInt(v, "OUTBOX_MAX_ATTEMPTS", 10),
			Lease:        getDuration(v, "OUTBOX_LEASE", 30*time.Second),
		},
		Stock: StockConfig{
			DefaultMinQuantity: int64(getInt(v, "STOCK_DEFAULT_MIN_QUANTITY", 10)),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getString(v, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Stdout:       getBool(v, "OTEL_STDOUT", false),
		},
	}

	if cfg.Services.CallTimeout <= 0 || cfg.Services.CallTimeout > 10*time.Second {
		return nil, fmt.Errorf("SERVICE_CALL_TIMEOUT debe estar entre 0 y 10s: %s", cfg.Services.CallTimeout)
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}

// getDuration acepta "30s", "5m" o un entero en segundos.
func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if !v.IsSet(key) {
		return def
	}
	raw := v.GetString(key)
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
