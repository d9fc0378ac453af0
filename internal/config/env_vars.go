package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	configFileEnvVar = "CONFIG_FILE"
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	envEnvVar        = "ENV"
	baseURLVar       = "BASE_URL"
	logLevelVar      = "LOG_LEVEL"
)

type AppSettings struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     string `yaml:"port"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
}

type EnvVars struct {
	app AppSettings
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, e.app.Port)
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, e.app.Name)
}

// GetEnv returns the deployment environment, upper-cased ("DEV", "PROD", ...).
func (e EnvVars) GetEnv() string {
	env := GetEnv(envEnvVar, e.app.Env)
	if env == "" {
		return "DEV"
	}
	return strings.ToUpper(env)
}

// GetBaseURL returns the public base URL (e.g., "https://auth.example.com").
// It is used as the default token issuer.
func (e EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, e.app.BaseURL)
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, e.app.LogLevel)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt falls back to defaultValue when the variable is unset or not a number.
func GetEnvInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvFloat(envVar string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(envVar), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvBool accepts anything strconv.ParseBool does.
func GetEnvBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvDuration accepts Go duration strings such as "15m" or "168h".
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}
