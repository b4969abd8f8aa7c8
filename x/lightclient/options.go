package lightclient

// Option configures the coordinator.
type Option func(*coordinatorConfig)

type coordinatorConfig struct {
	Emitter        Emitter
	Authorizer     Authorizer
	GasBudget      uint64
	MetricsEnabled bool
}

// DefaultGasBudget is the fixed resource budget attached to every proof
// request.
const DefaultGasBudget = 1_000_000

// WithEmitter sets the event emitter.
func WithEmitter(e Emitter) Option {
	return func(c *coordinatorConfig) {
		c.Emitter = e
	}
}

// WithAuthorizer sets the administrative access policy.
func WithAuthorizer(a Authorizer) Option {
	return func(c *coordinatorConfig) {
		c.Authorizer = a
	}
}

// WithGasBudget overrides the resource budget forwarded on proof requests.
func WithGasBudget(budget uint64) Option {
	return func(c *coordinatorConfig) {
		c.GasBudget = budget
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(enabled bool) Option {
	return func(c *coordinatorConfig) {
		c.MetricsEnabled = enabled
	}
}
