// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "sync/atomic"

// =============================================================================
// PROVIDER
// =============================================================================

// Provider hands out the current configuration snapshot. Snapshots are
// never mutated after they are stored, so readers may keep them.
type Provider struct {
	current atomic.Pointer[Config]
}

// NewProvider returns a Provider holding a copy of cfg.
func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.Store(cfg)
	return p
}

// Current returns the latest snapshot.
func (p *Provider) Current() *Config {
	return p.current.Load()
}

// Store replaces the snapshot with a copy of cfg and returns the previous
// one.
func (p *Provider) Store(cfg *Config) *Config {
	return p.current.Swap(cfg.Clone())
}
