package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config       *Config
	mcpPrincipal string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCPPrincipal sets the principal MCP tool calls act as.
func WithMCPPrincipal(principal string) Option {
	return func(a *application) {
		a.mcpPrincipal = principal
	}
}
