package main

import (
	"context"
	"fmt"

	"imgharvest/pkg/browser"
	"imgharvest/pkg/config"
	"imgharvest/pkg/dedupe"
	"imgharvest/pkg/extract"
	"imgharvest/pkg/fetch"
	"imgharvest/pkg/fingerprint"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/session"
	"imgharvest/pkg/storage"
)

// harvester owns the long-lived collaborators of one process
type harvester struct {
	surface *browser.Surface
	store   *dedupe.Store
	blobs   *storage.Manager
	session *session.Session
	log     logger.Logger
}

func newHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*harvester, error) {
	hasher := fingerprint.New(cfg.Hash.GridSize)

	var store *dedupe.Store
	if cfg.Dedupe.SeedFromDisk {
		var err error
		store, _, err = dedupe.LoadExisting(ctx, cfg.Output.ImageDir, hasher, log)
		if err != nil {
			return nil, fmt.Errorf("failed to seed dedupe store: %w", err)
		}
	} else {
		store = dedupe.New()
	}

	// The browser lives until Close, not until the first interrupt.
	surface, err := browser.Launch(context.WithoutCancel(ctx), cfg.Browser, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	blobs := storage.NewManager(cfg.Output)
	sess := session.New(cfg, session.Deps{
		Surface:   surface,
		Extractor: extract.New(cfg.Extract),
		Fetcher:   fetch.NewClient(cfg.Fetch, log),
		Hasher:    hasher,
		Store:     store,
		Blobs:     blobs,
	}, log)

	return &harvester{
		surface: surface,
		store:   store,
		blobs:   blobs,
		session: sess,
		log:     log,
	}, nil
}

// Close releases the browser. Safe to call more than once.
func (h *harvester) Close() {
	if err := h.surface.Release(); err != nil {
		h.log.WithError(err).Warn("Failed to release browser")
	}
	h.log.WithField("fingerprints", h.store.Len()).Debug("Dedupe store closed")
}
