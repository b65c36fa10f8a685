package session

// State is the facade's session state machine. Held in memory only,
// never persisted. Terminated is a transient label delivered through
// SubscribeState before the state settles at Anonymous; State() never
// reports it.
type State string

const (
	StateInitializing  State = "initializing"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
	StateRefreshing    State = "refreshing"
	StateTerminated    State = "terminated"
)
