package cli

import (
	"fmt"

	"github.com/gzhole/deskpilot/internal/client"
	"github.com/gzhole/deskpilot/internal/config"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/state"
)

// loadEngine reads the policy file, merges enabled packs and builds the
// engine shared by planner and executor.
func loadEngine(cfg *config.Config) (*policy.Engine, []policy.PackInfo, error) {
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load policy: %w", err)
	}
	merged, infos, err := policy.LoadPacks(cfg.PacksDir, pol)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load packs: %w", err)
	}
	engine, err := policy.NewEngine(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	return engine, infos, nil
}

func openState(cfg *config.Config) (*state.SQLiteStore, error) {
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Executor.APIURL, cfg.Executor.RequestTimeout)
}
