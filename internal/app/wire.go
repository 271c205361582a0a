package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/identity"
	"github.com/utracks/AegisChat/internal/room"
	"github.com/utracks/AegisChat/internal/session"
	"github.com/utracks/AegisChat/internal/transfer"
)

// Wire bundles one participant's core components.
type Wire struct {
	Identity  *identity.Store
	Room      *room.Coordinator
	Transfers *transfer.Manager
	Logger    *zap.Logger
}

// NewWire constructs the dependency graph for one participant. The caller
// owns the identity store and transport so it can register its inbound
// handler before the room exists.
func NewWire(cfg Config, ids *identity.Store, transport domain.Transport, events domain.Events, logger *zap.Logger) (*Wire, error) {
	if events == nil {
		events = domain.NopEvents{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id, err := ids.Identity()
	if err != nil {
		return nil, err
	}

	sessCfg := session.Config{RekeyAfter: cfg.RekeyAfter}
	return &Wire{
		Identity:  ids,
		Room:      room.New(id, transport, events, sessCfg),
		Transfers: transfer.NewManager(events),
		Logger:    logger,
	}, nil
}

// Close tears down sessions and wipes key material.
func (w *Wire) Close(ctx context.Context) error {
	err := w.Room.Close(ctx)
	w.Identity.Close()
	_ = w.Logger.Sync()
	return err
}
