package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Activation tokens (asymmetric; public key ships with the client)
	ActivationPrivateKey string
	TokenIssuer          string

	// Customer sessions (separate signing domain from activation tokens)
	SessionSecret string
	SessionExpiry time.Duration

	// Payments
	StripeSecretKey     string
	StripeWebhookSecret string
	PriceTierMap        map[string]string
	PriceCacheTTL       time.Duration

	// Founders program: keys bought at or before this date with no
	// subscription become lifetime entitlements on migration.
	FoundersCutoff time.Time

	// Staff / invites
	StaffToken  string
	JoinURLBase string

	// Rate limiting
	RateLimitMax       int
	RateLimitWindow    time.Duration
	LicenseLimitMax    int
	LicenseLimitWindow time.Duration
	RedisURL           string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "licensing_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ActivationPrivateKey: getEnv("ACTIVATION_PRIVATE_KEY", ""),
		TokenIssuer:          getEnv("TOKEN_ISSUER", "licensing-backend"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionExpiry: parseDuration(getEnv("SESSION_EXPIRY", "168h"), 168*time.Hour),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PriceTierMap:        parsePairs(getEnv("PRICE_TIER_MAP", "")),
		PriceCacheTTL:       parseDuration(getEnv("PRICE_CACHE_TTL", "1h"), time.Hour),

		FoundersCutoff: parseDate(getEnv("FOUNDERS_CUTOFF", "2023-12-31")),

		StaffToken:  getEnv("STAFF_TOKEN", ""),
		JoinURLBase: getEnv("JOIN_URL_BASE", "https://app.example.com/join"),

		RateLimitMax:       60,
		RateLimitWindow:    time.Minute,
		LicenseLimitMax:    10,
		LicenseLimitWindow: time.Minute,
		RedisURL:           getEnv("REDIS_URL", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	// End of day so same-day purchases count as founders.
	return t.Add(24*time.Hour - time.Nanosecond)
}

// parsePairs parses "price_123=maker,price_456=pro" style mappings.
func parsePairs(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}
