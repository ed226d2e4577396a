package tool

import (
	"log/slog"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/security"
)

// BuildOptions is everything besides the agent config needed to assemble
// the safety gate and dispatcher.
type BuildOptions struct {
	Backend             FilesystemBackend
	Limits              Limits
	MaxCallsPerMinute   int
	ExtraAllowedPaths   []string
	ExtraForbiddenPaths []string
}

// NewBuilder returns the constructor an Agent calls at start-up and on every
// config change. Each call produces a fresh SafetyManager, so paths added at
// runtime do not survive a rebuild.
func NewBuilder(opts BuildOptions, logger *slog.Logger) func(domain.AgentConfig) (domain.PathPolicy, domain.ToolDispatcher, error) {
	return func(cfg domain.AgentConfig) (domain.PathPolicy, domain.ToolDispatcher, error) {
		safety, err := security.NewSafetyManager(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range opts.ExtraAllowedPaths {
			safety.AddAllowedPath(p)
		}
		for _, p := range opts.ExtraForbiddenPaths {
			safety.AddForbiddenPath(p)
		}

		reg, err := NewRegistry(safety, Options{
			Agent:             cfg,
			Backend:           opts.Backend,
			Limits:            opts.Limits,
			MaxCallsPerMinute: opts.MaxCallsPerMinute,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return safety, reg, nil
	}
}
