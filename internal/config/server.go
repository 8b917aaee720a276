package config

import (
	"log/slog"
	"os"
	"strings"
)

type DBConfig struct {
	Driver     string
	SQLitePath string
	User       string
	Password   string
	DBName     string
	Host       string
	Port       string
	SSLMode    string
}

// ServerConfig configures the development backend.
type ServerConfig struct {
	Port          string
	LogLevel      string
	JWTSecret     string
	MQTTBrokerURL string
	MQTTClientID  string
	TopicPrefix   string
	Dispense      bool
	SeedDevices   []string
	DB            DBConfig
}

func LoadServer() *ServerConfig {
	cfg := &ServerConfig{
		Port:          getEnv("FEEDER_DEVSERVER_PORT", "3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", "petfeeder-dev-secret"),
		MQTTBrokerURL: strings.TrimSpace(os.Getenv("MQTT_BROKER_URL")),
		MQTTClientID:  getEnv("FEEDER_MQTT_CLIENT_ID", "feeder-devserver"),
		TopicPrefix:   getEnv("FEEDER_MQTT_PREFIX", "petfeeder/device/"),
		Dispense:      parseBool(getEnv("FEEDER_DISPENSE", "true")),
		SeedDevices:   splitList(getEnv("FEEDER_SEED_DEVICES", "feeder-1")),
		DB: DBConfig{
			Driver:     strings.ToLower(getEnv("FEEDER_DB_DRIVER", "sqlite")),
			SQLitePath: getEnv("FEEDER_SQLITE_PATH", "feeder-devserver.db"),
			User:       strings.TrimSpace(os.Getenv("POSTGRES_USER")),
			Password:   os.Getenv("POSTGRES_PASSWORD"),
			DBName:     strings.TrimSpace(os.Getenv("POSTGRES_DB")),
			Host:       strings.TrimSpace(os.Getenv("POSTGRES_HOST")),
			Port:       getEnv("POSTGRES_PORT", "5432"),
			SSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
		},
	}

	slog.Info("feeder-devserver config loaded", "port", cfg.Port, "db", cfg.DB.Driver, "mqtt", cfg.MQTTBrokerURL)
	return cfg
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
