package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MongoURI       string
	MongoDatabase  string
	PostgresURI    string
	RedisURI       string
	Port           string
	LogLevel       string
	FrontendURL    string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	Host           string   // Raw HOST env (e.g. https://api.krishi.example)
	AllowedHost    string   // Hostname only for strict host check (production only)
	Environment    string   // ENV: production, development, etc.
	AdminToken     string
	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP replace RemoteAddr
	TrustProxyHeaders bool

	// ContextStore backend: "mongo" or "memory"
	ContextStore string

	WeatherAPIKey             string
	WeatherBaseURL            string
	WeatherCacheTTL           time.Duration
	WeatherTimeout            time.Duration
	WeatherCacheSweepInterval time.Duration
	WeatherCacheMaxAge        time.Duration

	ResendAPIKey string
	MailFrom     string
	MailFromName string
	MailTimeout  time.Duration

	OtpTTL         time.Duration
	OtpMaxAttempts int
	OtpStore       string // "memory" or "redis"
	OtpSecret      string

	SessionTTL time.Duration

	GeminiAPIKey string
	GeminiModel  string

	// malformed lists keys whose value could not be parsed; the default was used.
	malformed []string
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))
	host := getEnv("HOST", "http://localhost:8080")

	// AllowedHost is only set in production; host check is skipped in development
	var allowedHost string
	if env == "production" {
		allowedHost = bareHost(host)
	}

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", ""), getEnv("FRONTEND_URL_3", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}
	// When HOST is a backend subdomain (api.example.com), also allow https://example.com and https://www.example.com
	hostForCORS := bareHost(host)
	if hostForCORS != "" && hostForCORS != "localhost" {
		parts := strings.Split(hostForCORS, ".")
		if len(parts) >= 2 {
			domain := strings.Join(parts[1:], ".")
			for _, origin := range []string{"https://" + domain, "https://www." + domain} {
				if !containsOrigin(allowedOrigins, origin) {
					allowedOrigins = append(allowedOrigins, origin)
				}
			}
		}
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	parse := &envParser{}
	cfg := &Config{
		MongoURI:       getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/krishi")),
		MongoDatabase:  getEnv("MONGODB_DATABASE", ""),
		PostgresURI:    getEnv("POSTGRES_URI", "postgres://localhost:5432/krishi?sslmode=disable"),
		RedisURI:       getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Port:           getEnv("PORT", "8080"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins: allowedOrigins,
		Host:           host,
		AllowedHost:    allowedHost,
		Environment:    env,
		AdminToken:     getEnv("ADMIN_TOKEN", ""),

		TrustProxyHeaders: parse.boolean("TRUST_PROXY_HEADERS", false),

		ContextStore: strings.ToLower(getEnv("CONTEXT_STORE", "mongo")),

		WeatherAPIKey:             getEnv("WEATHER_API_KEY", ""),
		WeatherBaseURL:            getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org"),
		WeatherCacheTTL:           parse.duration("WEATHER_CACHE_TTL", 10*time.Minute),
		WeatherTimeout:            parse.duration("WEATHER_TIMEOUT", 5*time.Second),
		WeatherCacheSweepInterval: parse.duration("WEATHER_CACHE_SWEEP_INTERVAL", time.Hour),
		WeatherCacheMaxAge:        parse.duration("WEATHER_CACHE_MAX_AGE", 24*time.Hour),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		MailFrom:     getEnv("MAIL_FROM", "noreply@krishi.example"),
		MailFromName: getEnv("MAIL_FROM_NAME", "Krishi Advisor"),
		MailTimeout:  parse.duration("MAIL_TIMEOUT", 10*time.Second),

		OtpTTL:         parse.duration("OTP_TTL", 10*time.Minute),
		OtpMaxAttempts: parse.integer("OTP_MAX_ATTEMPTS", 3),
		OtpStore:       strings.ToLower(getEnv("OTP_STORE", "memory")),
		OtpSecret:      getEnv("OTP_SECRET", ""),

		SessionTTL: parse.duration("SESSION_TTL", 7*24*time.Hour),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
	}
	cfg.malformed = parse.malformed
	return cfg
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if len(c.malformed) > 0 {
		return fmt.Errorf("malformed values for %s", strings.Join(c.malformed, ", "))
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.ContextStore {
	case "mongo", "memory":
	default:
		return fmt.Errorf("CONTEXT_STORE must be mongo or memory, got %q", c.ContextStore)
	}
	switch c.OtpStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("OTP_STORE must be memory or redis, got %q", c.OtpStore)
	}
	if c.OtpMaxAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be > 0")
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"OTP_TTL", c.OtpTTL},
		{"SESSION_TTL", c.SessionTTL},
		{"MAIL_TIMEOUT", c.MailTimeout},
		{"WEATHER_CACHE_TTL", c.WeatherCacheTTL},
		{"WEATHER_TIMEOUT", c.WeatherTimeout},
		{"WEATHER_CACHE_SWEEP_INTERVAL", c.WeatherCacheSweepInterval},
		{"WEATHER_CACHE_MAX_AGE", c.WeatherCacheMaxAge},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.value)
		}
	}
	if c.IsProduction() && c.OtpSecret == "" {
		return fmt.Errorf("OTP_SECRET is required in production")
	}
	return nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func bareHost(host string) string {
	h := host
	for _, prefix := range []string{"https://", "http://"} {
		h = strings.TrimPrefix(h, prefix)
	}
	if idx := strings.Index(h, "/"); idx != -1 {
		h = h[:idx]
	}
	if idx := strings.Index(h, ":"); idx != -1 {
		h = h[:idx]
	}
	return strings.TrimSpace(h)
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser reads typed values and remembers the keys it could not parse.
type envParser struct {
	malformed []string
}

func (p *envParser) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (p *envParser) integer(key string, defaultValue int) int {
	v, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.malformed = append(p.malformed, key)
		return defaultValue
	}
	return n
}

func (p *envParser) boolean(key string, defaultValue bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.malformed = append(p.malformed, key)
		return defaultValue
	}
	return b
}

func (p *envParser) duration(key string, defaultValue time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.malformed = append(p.malformed, key)
		return defaultValue
	}
	return d
}
