// Пакет config — загрузка и валидация конфигурации objektpro
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Минимальная длина секрета подписи токенов (HS256).
const minJWTSecretLen = 32

// Верхняя граница файлов в одном запросе загрузки.
const maxFilesLimit = 100

// Config содержит все параметры конфигурации objektpro.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Окружение (production, development, ...) — только для /health
	Environment string
	// Включать текст внутренних ошибок в ответы 500
	Diagnostic bool

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле
	DBMaxConns int32

	// --- Токены ---

	// Секрет подписи HS256
	JWTSecret []byte
	// Значение claim iss
	JWTIssuer string
	// Время жизни токена
	JWTTTL time.Duration

	// --- Загрузка файлов ---

	// Корневой каталог хранения загруженных файлов
	UploadDir string
	// Размещать файлы пакета в подкаталоге <UploadDir>/<batch_id>
	UploadBatchDirs bool
	// Максимум файлов в одном запросе
	UploadMaxFiles int
	// Максимальный размер одного файла в байтах
	UploadMaxFileSize int64
	// Количество воркеров записи метаданных (1 — последовательно)
	IngestWorkers int

	// --- Прогресс ---

	// Время жизни записи прогресса
	ProgressTTL time.Duration
	// Ёмкость реестра прогресса
	ProgressMaxEntries int

	// --- Прочее ---

	// Каталог сборки SPA (опционально)
	StaticDir string
	// Начальный администратор (опционально, все три поля вместе)
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	BootstrapAdminName     string

	// Группа метрик topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- HTTP / graceful shutdown ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// OP_PORT — порт HTTP-сервера (по умолчанию 3001)
	cfg.Port, err = getEnvInt("OP_PORT", 3001)
	if err != nil {
		return nil, fmt.Errorf("OP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("OP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// OP_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OP_LOG_LEVEL: %w", err)
	}

	// OP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("OP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.Environment = getEnvDefault("OP_ENVIRONMENT", "production")

	cfg.Diagnostic, err = getEnvBool("OP_DIAGNOSTIC", false)
	if err != nil {
		return nil, fmt.Errorf("OP_DIAGNOSTIC: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("OP_DB_HOST"); err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("OP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("OP_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("OP_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("OP_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("OP_DB_PASSWORD"); err != nil {
		return nil, err
	}

	// OP_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("OP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("OP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	maxConns, err := getEnvInt("OP_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("OP_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 1 || maxConns > 1000 {
		return nil, fmt.Errorf("OP_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", maxConns)
	}
	cfg.DBMaxConns = int32(maxConns)

	// --- Токены ---

	secret, err := getEnvRequired("OP_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(secret) < minJWTSecretLen {
		return nil, fmt.Errorf("OP_JWT_SECRET: длина %d байт, минимум %d", len(secret), minJWTSecretLen)
	}
	cfg.JWTSecret = []byte(secret)

	cfg.JWTIssuer = getEnvDefault("OP_JWT_ISSUER", "objektpro")

	cfg.JWTTTL, err = getEnvDuration("OP_JWT_TTL", 8*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("OP_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("OP_JWT_TTL: значение должно быть положительным")
	}

	// --- Загрузка файлов ---

	cfg.UploadDir = getEnvDefault("OP_UPLOAD_DIR", "./uploads")

	cfg.UploadBatchDirs, err = getEnvBool("OP_UPLOAD_BATCH_DIRS", true)
	if err != nil {
		return nil, fmt.Errorf("OP_UPLOAD_BATCH_DIRS: %w", err)
	}

	cfg.UploadMaxFiles, err = getEnvInt("OP_UPLOAD_MAX_FILES", maxFilesLimit)
	if err != nil {
		return nil, fmt.Errorf("OP_UPLOAD_MAX_FILES: %w", err)
	}
	if cfg.UploadMaxFiles < 1 || cfg.UploadMaxFiles > maxFilesLimit {
		return nil, fmt.Errorf("OP_UPLOAD_MAX_FILES: значение %d вне допустимого диапазона 1-%d", cfg.UploadMaxFiles, maxFilesLimit)
	}

	cfg.UploadMaxFileSize, err = getEnvInt64("OP_UPLOAD_MAX_FILE_SIZE", 100*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("OP_UPLOAD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.UploadMaxFileSize < 1 {
		return nil, fmt.Errorf("OP_UPLOAD_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.IngestWorkers, err = getEnvInt("OP_INGEST_WORKERS", 1)
	if err != nil {
		return nil, fmt.Errorf("OP_INGEST_WORKERS: %w", err)
	}
	if cfg.IngestWorkers < 1 || cfg.IngestWorkers > 32 {
		return nil, fmt.Errorf("OP_INGEST_WORKERS: значение %d вне допустимого диапазона 1-32", cfg.IngestWorkers)
	}
	// Каждый воркер сверх первого держит своё соединение: одному пакету
	// нельзя занимать весь пул.
	if cfg.IngestWorkers > 1 && cfg.IngestWorkers > int(cfg.DBMaxConns)-1 {
		return nil, fmt.Errorf("OP_INGEST_WORKERS: значение %d должно быть меньше OP_DB_MAX_CONNS (%d)",
			cfg.IngestWorkers, cfg.DBMaxConns)
	}

	// --- Прогресс ---

	cfg.ProgressTTL, err = getEnvDuration("OP_PROGRESS_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("OP_PROGRESS_TTL: %w", err)
	}
	if cfg.ProgressTTL <= 0 {
		return nil, fmt.Errorf("OP_PROGRESS_TTL: значение должно быть положительным")
	}

	cfg.ProgressMaxEntries, err = getEnvInt("OP_PROGRESS_MAX_ENTRIES", 10000)
	if err != nil {
		return nil, fmt.Errorf("OP_PROGRESS_MAX_ENTRIES: %w", err)
	}
	if cfg.ProgressMaxEntries < 1 {
		return nil, fmt.Errorf("OP_PROGRESS_MAX_ENTRIES: значение должно быть положительным")
	}

	// --- Прочее ---

	cfg.StaticDir = getEnvDefault("OP_STATIC_DIR", "")

	cfg.BootstrapAdminEmail = getEnvDefault("OP_BOOTSTRAP_ADMIN_EMAIL", "")
	cfg.BootstrapAdminPassword = getEnvDefault("OP_BOOTSTRAP_ADMIN_PASSWORD", "")
	cfg.BootstrapAdminName = getEnvDefault("OP_BOOTSTRAP_ADMIN_NAME", "Administrator")
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		return nil, fmt.Errorf("OP_BOOTSTRAP_ADMIN_EMAIL и OP_BOOTSTRAP_ADMIN_PASSWORD задаются только вместе")
	}

	cfg.DephealthGroup = getEnvDefault("OP_DEPHEALTH_GROUP", "objektpro")

	cfg.DephealthCheckInterval, err = getEnvDuration("OP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP ---

	cfg.HTTPReadTimeout, err = getEnvDuration("OP_HTTP_READ_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("OP_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("OP_HTTP_IDLE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// OP_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("OP_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для dephealth).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx/v5).
func (c *Config) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(c.DatabaseURL(), "postgres")
}

// HasBootstrapAdmin сообщает, задан ли начальный администратор.
func (c *Config) HasBootstrapAdmin() bool {
	return c.BootstrapAdminEmail != "" && c.BootstrapAdminPassword != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 — то же, что getEnvInt, для размеров в байтах.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
