package config

import "time"

// SchedulerConfig exposes the refresh-scheduler intervals. Production
// values keep sessions warm without hammering the authority; development
// values compress the whole cycle into seconds so the behaviour can be
// watched live.
type SchedulerConfig interface {
	GetPeriodicRefreshInterval() time.Duration
	GetActivityThreshold() time.Duration
	GetActivityDebounce() time.Duration
	GetProactiveCheckInterval() time.Duration
	GetExpiryHorizon() time.Duration
}

const (
	periodicRefreshProd = 30 * time.Minute
	periodicRefreshDev  = 1 * time.Minute

	activityThresholdProd = 5 * time.Minute
	activityThresholdDev  = 30 * time.Second

	activityDebounceProd = 30 * time.Second
	activityDebounceDev  = 5 * time.Second

	proactiveCheckProd = 15 * time.Minute
	proactiveCheckDev  = 30 * time.Second

	// A credential expiring inside this horizon is refreshed proactively.
	expiryHorizon = time.Hour
)

type Scheduler struct {
	env EnvConfig
}

var _ SchedulerConfig = Scheduler{}

func (s Scheduler) GetPeriodicRefreshInterval() time.Duration {
	if s.env.IsDevelopmentMode() {
		return periodicRefreshDev
	}
	return periodicRefreshProd
}

func (s Scheduler) GetActivityThreshold() time.Duration {
	if s.env.IsDevelopmentMode() {
		return activityThresholdDev
	}
	return activityThresholdProd
}

func (s Scheduler) GetActivityDebounce() time.Duration {
	if s.env.IsDevelopmentMode() {
		return activityDebounceDev
	}
	return activityDebounceProd
}

func (s Scheduler) GetProactiveCheckInterval() time.Duration {
	if s.env.IsDevelopmentMode() {
		return proactiveCheckDev
	}
	return proactiveCheckProd
}

func (s Scheduler) GetExpiryHorizon() time.Duration {
	return expiryHorizon
}
