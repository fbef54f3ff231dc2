package problem

import "context"

// InstanceLoader supplies the raw data of a session. Implementations are read
// only from the engine's point of view.
type InstanceLoader interface {
	LoadInstance(ctx context.Context, sessionID string) (*Instance, error)
}

// LoadAndBuild fetches an instance and builds its indices.
func LoadAndBuild(ctx context.Context, loader InstanceLoader, sessionID string, opts Options) (*Problem, error) {
	in, err := loader.LoadInstance(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Build(*in, opts)
}
