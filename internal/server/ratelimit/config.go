package ratelimit

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Rate is a number of requests allowed per window.
type Rate struct {
	Limit  int
	Window time.Duration
}

func (r Rate) perSecond() float64 {
	return float64(r.Limit) / r.Window.Seconds()
}

func (r Rate) String() string {
	for name, d := range windowUnits {
		if r.Window == d {
			return fmt.Sprintf("%d/%s", r.Limit, name)
		}
	}
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

var windowUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRates parses a list of rates such as "2/minute;20 per hour, 100/day".
// A window may also be a Go duration: "5/30s".
func ParseRates(value string) ([]Rate, error) {
	var rates []Rate
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ';' || r == ',' })
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		count, window, ok := strings.Cut(field, "/")
		if !ok {
			count, window, ok = strings.Cut(field, " per ")
		}
		if !ok {
			return nil, fmt.Errorf("invalid rate %q: expected <count>/<window>", field)
		}

		limit, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid rate %q: count must be a positive integer", field)
		}

		window = strings.ToLower(strings.TrimSpace(window))
		d, known := windowUnits[strings.TrimSuffix(window, "s")]
		if !known {
			d, err = time.ParseDuration(window)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid rate %q: unknown window %q", field, window)
			}
		}
		rates = append(rates, Rate{Limit: limit, Window: d})
	}
	return rates, nil
}

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string // Endpoint path pattern (supports prefix matching)
	Method string // HTTP method (GET, POST, etc.)
	Rates  []Rate // Every rate must admit a request
}

// DefaultAIRates are the limits of the LLM-backed endpoints.
func DefaultAIRates() []Rate {
	return []Rate{
		{Limit: 2, Window: time.Minute},
		{Limit: 20, Window: time.Hour},
		{Limit: 100, Window: 24 * time.Hour},
	}
}

// DefaultAuthRates limit authentication attempts per IP.
func DefaultAuthRates() []Rate {
	return []Rate{{Limit: 2, Window: time.Minute}}
}

// DefaultRenderRates are the limits of the render-only endpoint.
func DefaultRenderRates() []Rate {
	return []Rate{{Limit: 10, Window: time.Minute}, {Limit: 200, Window: 24 * time.Hour}}
}

// LoadConfig loads rate limiting configuration from environment variables.
// Unparseable values fall back to their defaults.
func LoadConfig() *Config {
	enabled := getEnvBool("RATE_LIMIT_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	defaultRates := getEnvRates("RATE_LIMIT_DEFAULT", []Rate{{Limit: 1000, Window: time.Minute}})
	cleanupInterval := getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)

	whitelist := parseIPList(getEnvString("RATE_LIMIT_WHITELIST", ""))
	blacklist := parseIPList(getEnvString("RATE_LIMIT_BLACKLIST", ""))

	endpoints := DefaultEndpointConfigs(
		getEnvRates("RATE_LIMIT_AI", DefaultAIRates()),
		getEnvRates("RATE_LIMIT_AUTH", DefaultAuthRates()),
	)
	endpoints = append(endpoints, EndpointConfig{
		Path: "/render-resume", Method: "POST", Rates: getEnvRates("RATE_LIMIT_RENDER", DefaultRenderRates()),
	})

	return &Config{
		Enabled:         enabled,
		DefaultRates:    defaultRates,
		CleanupInterval: cleanupInterval,
		Whitelist:       whitelist,
		Blacklist:       blacklist,
		EndpointConfigs: endpoints,
	}
}

// DefaultEndpointConfigs returns the endpoint-specific configurations.
func DefaultEndpointConfigs(aiRates, authRates []Rate) []EndpointConfig {
	return []EndpointConfig{
		// Keyed by client IP: no token exists yet.
		{Path: "/authenticate", Method: "POST", Rates: authRates},

		// LLM-backed endpoints, keyed by token subject.
		{Path: "/get-resume-json", Method: "POST", Rates: aiRates},
		{Path: "/generate-search-query", Method: "POST", Rates: aiRates},
		{Path: "/analyze-job-posting", Method: "POST", Rates: aiRates},
		{Path: "/generate-cover-letter", Method: "POST", Rates: aiRates},
		{Path: "/tailor-resume", Method: "POST", Rates: aiRates},
	}
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvRates gets an environment variable as a rate list with a default value.
func getEnvRates(key string, defaultValue []Rate) []Rate {
	if value := os.Getenv(key); value != "" {
		if rates, err := ParseRates(value); err == nil && len(rates) > 0 {
			return rates
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	if list == "" {
		return result
	}

	ips := strings.Split(list, ",")
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}

	return result
}
