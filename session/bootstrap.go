package session

import (
	"github.com/rs/zerolog"

	"github.com/rundeklar/go-auth-client/fetch"
	"github.com/rundeklar/go-auth-client/internal/config"
	"github.com/rundeklar/go-auth-client/tenant"
	"github.com/rundeklar/go-auth-client/token/refresh"
	"github.com/rundeklar/go-auth-client/token/store"
)

// Client bundles the fully wired session stack for a host application.
type Client struct {
	Service *Service
	Binding *tenant.Binding
	Fetch   *fetch.Client
	Store   store.Store
}

// Bootstrap wires the whole dependency chain bottom-up, from environment
// configuration and the page URL the session was opened with. The
// store's change notification feeds the binding's isolation tracker.
func Bootstrap(cfg config.Config, pageURL string, log zerolog.Logger) (*Client, error) {
	var binding *tenant.Binding
	tokenStore := store.NewFile(cfg.GetDataFolder(), store.WithOnChange(func() {
		if binding != nil {
			binding.Track()
		}
	}))

	binding = tenant.NewBinding(tenant.Resolve(pageURL), tokenStore, tenant.WithLogger(log))

	coordinator := refresh.NewCoordinator(tokenStore, cfg.GetBaseURL(), refresh.WithLogger(log))
	scheduler := refresh.NewScheduler(coordinator, tokenStore, cfg, refresh.WithSchedulerLogger(log))
	fetchClient := fetch.New(tokenStore, coordinator, cfg.GetBaseURL(), fetch.WithLogger(log))

	svc, err := NewService(Deps{
		Store:       tokenStore,
		Coordinator: coordinator,
		Scheduler:   scheduler,
		Fetch:       fetchClient,
		Binding:     binding,
	}, WithLogger(log))
	if err != nil {
		return nil, err
	}

	return &Client{
		Service: svc,
		Binding: binding,
		Fetch:   fetchClient,
		Store:   tokenStore,
	}, nil
}
