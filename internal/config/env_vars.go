package config

import "os"

const (
	appNameVar    = "APP_NAME"
	baseURLVar    = "AUTH_BASE_URL"
	folderEnvVar  = "FOLDER"
	devModeEnvVar = "DEV_MODE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Rundeklar Auth")
}

// GetBaseURL returns the base URL of the authority (e.g. "https://rundeklar.dk").
// All /auth/* endpoints are resolved relative to it.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// IsDevelopmentMode shortens all scheduler intervals and enables debug
// logging. Off unless DEV_MODE is explicitly truthy.
func (EnvVars) IsDevelopmentMode() bool {
	switch os.Getenv(devModeEnvVar) {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
