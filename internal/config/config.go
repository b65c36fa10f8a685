package config

type Config interface {
	EnvConfig
	SchedulerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	IsDevelopmentMode() bool
}

type mainConfig struct {
	EnvVars
	Scheduler
}

func New() Config {
	env := EnvVars{}
	return mainConfig{
		EnvVars:   env,
		Scheduler: Scheduler{env: env},
	}
}
