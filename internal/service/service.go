// Package service coordinates the run lifecycle: request validation, engine
// execution in the background, and the control operations exposed over HTTP.
package service

import (
	"github.com/fathomlab/fathom/config"
	"github.com/fathomlab/fathom/internal/adapter/relay"
	"github.com/fathomlab/fathom/internal/engine"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/store"
)

type Service struct {
	store       store.Store
	registry    *registry.Registry
	engine      *engine.Engine
	relayClient *relay.Client
	config      *config.Config
}

func New(st store.Store, reg *registry.Registry, eng *engine.Engine, relayClient *relay.Client, cfg *config.Config) *Service {
	return &Service{
		store:       st,
		registry:    reg,
		engine:      eng,
		relayClient: relayClient,
		config:      cfg,
	}
}
