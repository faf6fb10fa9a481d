package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BookmarksFileName is the container file inside the data dir.
const BookmarksFileName = "bookmarks.db"

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	DataDir string // directory holding the bookmarks file

	HomepageBookmarks string        // path to a Homepage bookmarks.yaml (optional, empty = import disabled)
	ImportInterval    time.Duration // interval between homepage imports (default: 1h)
	ImportPrune       bool          // remove imported bookmarks that left the yaml file

	// Redis mirror (optional, empty RedisAddr = disabled)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password when a mirror is configured
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	MirrorInterval        time.Duration // full mirror reconcile interval (ex: 15m)

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict mutating routes to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)

	ImportBurst           int   // netscape import requests allowed in a burst, per IP
	ImportRefillPerMinute int   // netscape import tokens refilled per minute, per IP
	MaxImportBytes        int64 // max netscape upload size
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MARKS_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("MARKS_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("MARKS_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MARKS_PRETTY_LOG", true),

		// Storage
		DataDir: getenv("MARKS_DATA_DIR", defaultDataDir()),

		// Homepage import
		HomepageBookmarks: getenv("MARKS_HOMEPAGE_BOOKMARKS", ""),
		ImportInterval:    mustDuration("MARKS_IMPORT_INTERVAL", time.Hour),
		ImportPrune:       mustBool("MARKS_IMPORT_PRUNE", false),

		// Redis settings
		RedisAddr:             getenv("MARKS_REDIS_ADDR", ""),
		RedisUser:             getenv("MARKS_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("MARKS_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("MARKS_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("MARKS_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),
		MirrorInterval:        mustDuration("MARKS_MIRROR_INTERVAL", 15*time.Minute),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("MARKS_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("MARKS_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("MARKS_TRUST_PROXY", false),

		// Import rate limit
		ImportBurst:           getenvInt("MARKS_IMPORT_BURST", 5),
		ImportRefillPerMinute: getenvInt("MARKS_IMPORT_REFILL_PER_MIN", 2),
		MaxImportBytes:        int64(getenvInt("MARKS_MAX_IMPORT_BYTES", 8<<20)),
	}

	// Validate Redis password configuration
	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: MARKS_REDIS_PASSWORD is required when MARKS_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// BookmarksFile returns the path of the bookmarks container.
func (c *Config) BookmarksFile() string {
	return filepath.Join(c.DataDir, BookmarksFileName)
}

// MirrorEnabled reports whether a Redis mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.RedisAddr != ""
}

// defaultDataDir is <user config dir>/marks, or ./marks-data when the
// platform has none.
func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "marks-data"
	}
	return filepath.Join(dir, "marks")
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
