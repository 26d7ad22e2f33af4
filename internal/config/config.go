package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port                 string
	DatabaseURL          string
	ConfigEndpoint       string
	AttributionEndpoint  string
	AttributionAppID     string
	AppVersion           string
	ForceMode            string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	NotifyRecipient      string
	OpenAIAPIKey         string
	OrbitHeadless        bool
	OrbitNavTimeout      time.Duration
	OrbitBounceCap       int
	LocalTimezone        *time.Location
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	timezoneName := getenvDefault("LOCAL_TIMEZONE", "Local")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err)
		location = time.Local
	}

	return &Config{
		Port:                 getenvDefault("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ConfigEndpoint:       os.Getenv("CONFIG_ENDPOINT"),
		AttributionEndpoint:  os.Getenv("ATTRIBUTION_ENDPOINT"),
		AttributionAppID:     getenvDefault("ATTRIBUTION_APP_ID", "chickremind"),
		AppVersion:           getenvDefault("APP_VERSION", "1.0.0"),
		ForceMode:            os.Getenv("FORCE_MODE"),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		NotifyRecipient:      os.Getenv("NOTIFY_RECIPIENT"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OrbitHeadless:        ParseBoolEnv("ORBIT_HEADLESS", true),
		OrbitNavTimeout:      time.Duration(ParseIntEnv("ORBIT_NAV_TIMEOUT_MS", 30000)) * time.Millisecond,
		OrbitBounceCap:       ParseIntEnv("ORBIT_BOUNCE_CAP", 70),
		LocalTimezone:        location,
	}
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}

// ParseBoolEnv returns the boolean value for an environment variable or the provided default.
func ParseBoolEnv(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as bool: %v", key, value, err)
		return def
	}
	return parsed
}
