package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/goodnight000/kittycourt-backend/internal/logger"
)

// Config хранит все параметры запуска приложения.
type Config struct {
	Env            string
	HTTPPort       string
	DatabaseURL    string
	MigrationsPath string
	JWTSecret      string
	AccessTokenTTL time.Duration
	AllowedOrigins []string

	RateLimitLimit     int64
	RateLimitPeriod    time.Duration
	WSActionsPerSecond float64
	WSActionBurst      int

	AIBaseURL       string
	AIModel         string
	AIAPIKey        string
	AIMaxConcurrent int64
	AITimeout       time.Duration

	SessionPendingTTL    time.Duration
	SessionEvidenceTTL   time.Duration
	SessionSweepInterval time.Duration
}

// UsesMemoryStore сообщает, что база не настроена и сессии живут в памяти процесса.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == ""
}

// Load читает переменные окружения и возвращает готовую конфигурацию.
func Load() (*Config, error) {
	// Загружаем .env только если он существует, иначе используем системные переменные.
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Debugf("config: .env не найден, используем переменные окружения: %v", err)
	}

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:            env,
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseURL:    getDatabaseURL(),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		AIBaseURL:      getEnv("AI_BASE_URL", ""),
		AIModel:        getEnv("AI_MODEL", "gpt-4o-mini"),
		AIAPIKey:       getEnv("AI_API_KEY", ""),
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if env == "production" {
		if len(jwtSecret) < 32 {
			return nil, fmt.Errorf("config: JWT_SECRET обязателен и должен быть не менее 32 символов в production")
		}
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL обязателен в production")
		}
	} else if jwtSecret == "" {
		jwtSecret = "super-secret-development-only-change-in-production"
		logger.Log.Warn("config: используется дефолтный JWT_SECRET, измените в production!")
	}
	cfg.JWTSecret = jwtSecret

	originsStr := getEnv("CORS_ALLOWED_ORIGINS", "")
	if originsStr == "" {
		if env == "production" {
			return nil, fmt.Errorf("config: CORS_ALLOWED_ORIGINS обязателен в production")
		}
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	} else {
		for _, origin := range strings.Split(originsStr, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	p := &envParser{}
	cfg.AccessTokenTTL = p.duration("ACCESS_TOKEN_TTL", "15m")

	// Rate limiting настройки
	cfg.RateLimitLimit = p.integer("RATE_LIMIT_LIMIT", "60")
	cfg.RateLimitPeriod = p.duration("RATE_LIMIT_PERIOD", "1m")
	cfg.WSActionsPerSecond = p.decimal("WS_ACTIONS_PER_SECOND", "5")
	cfg.WSActionBurst = int(p.integer("WS_ACTION_BURST", "10"))

	cfg.AIMaxConcurrent = p.integer("AI_MAX_CONCURRENT", "4")
	cfg.AITimeout = p.duration("AI_TIMEOUT", "90s")

	cfg.SessionPendingTTL = p.duration("SESSION_PENDING_TTL", "24h")
	cfg.SessionEvidenceTTL = p.duration("SESSION_EVIDENCE_TTL", "72h")
	cfg.SessionSweepInterval = p.duration("SESSION_SWEEP_INTERVAL", "5m")
	if p.err != nil {
		return nil, p.err
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или дефолт.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getDatabaseURL возвращает DATABASE_URL либо из переменной, либо собирает из отдельных переменных.
// Пустая строка означает хранилище в памяти.
func getDatabaseURL() string {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return dbURL
	}

	// Формат платформы: отдельные переменные.
	host := getEnv("POSTGRESQL_HOST", "")
	port := getEnv("POSTGRESQL_PORT", "5432")
	user := getEnv("POSTGRESQL_USER", "")
	password := getEnv("POSTGRESQL_PASSWORD", "")
	dbname := getEnv("POSTGRESQL_DBNAME", "")

	if host != "" && user != "" && dbname != "" {
		userInfo := url.UserPassword(user, password)
		return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
			userInfo.String(), host, port, dbname)
	}

	return ""
}

// envParser читает числовые переменные и запоминает первую ошибку.
type envParser struct {
	err error
}

func (p *envParser) duration(key, fallback string) time.Duration {
	v := getEnv(key, fallback)
	dur, err := time.ParseDuration(v)
	p.fail(key, v, err)
	return dur
}

func (p *envParser) integer(key, fallback string) int64 {
	v := getEnv(key, fallback)
	num, err := strconv.ParseInt(v, 10, 64)
	p.fail(key, v, err)
	return num
}

func (p *envParser) decimal(key, fallback string) float64 {
	v := getEnv(key, fallback)
	num, err := strconv.ParseFloat(v, 64)
	p.fail(key, v, err)
	return num
}

func (p *envParser) fail(key, value string, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("config: не удалось распарсить %s=%q: %w", key, value, err)
	}
}
