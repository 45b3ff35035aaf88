package main

import (
	"context"
	"errors"
	"fmt"

	"shadebot/internal/campaign"
	"shadebot/internal/catalog"
	"shadebot/internal/config"
	"shadebot/internal/dispatch"
	"shadebot/internal/escalation"
	"shadebot/internal/logging"
	"shadebot/internal/perception"
	"shadebot/internal/store"
	"shadebot/internal/usage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	store      store.Store
	tracker    *usage.Tracker
	watcher    *perception.DefinitionsWatcher
	resolver   *perception.Resolver
	dispatcher *dispatch.Dispatcher
}

// newApp wires the dispatcher from cfg. The returned context carries the
// usage tracker; callers must Close the app.
func newApp(ctx context.Context, cfg *config.Config) (*app, context.Context, error) {
	a := &app{cfg: cfg}

	tracker, err := usage.NewTracker(cfg.Store.UsageDir)
	if err != nil {
		return nil, ctx, err
	}
	a.tracker = tracker
	ctx = usage.NewContext(ctx, tracker)

	defs := perception.DefaultDefinitions()
	if path := cfg.Definitions.Path; path != "" {
		if defs, err = perception.LoadDefinitions(path); err != nil {
			return nil, ctx, fmt.Errorf("load definitions: %w", err)
		}
		if cfg.Definitions.Watch {
			w, err := perception.NewDefinitionsWatcher(path, defs)
			if err != nil {
				return nil, ctx, err
			}
			if err := w.Start(ctx); err != nil {
				w.Stop()
				return nil, ctx, err
			}
			a.watcher = w
		}
	}

	svc, err := perception.NewService(ctx, cfg.LLM)
	switch {
	case errors.Is(err, perception.ErrNoProvider):
		logging.BootWarn("no completion provider configured, running deterministic tiers only")
	case err != nil:
		a.Close()
		return nil, ctx, err
	}
	a.resolver = perception.NewResolver(defs, svc, cfg.Thresholds.ClassifierConfidence)

	var src catalog.Source
	if cfg.Catalog.Path != "" {
		src, err = catalog.LoadFile(cfg.Catalog.Path)
	} else {
		src, err = catalog.Default()
	}
	if err != nil {
		a.Close()
		return nil, ctx, fmt.Errorf("load catalog: %w", err)
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, ctx, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	t := cfg.Thresholds
	machine := escalation.New(escalation.Thresholds{
		EdgeCaseConfidence:  t.EdgeCaseConfidence,
		HumanStaleness:      cfg.GetHumanStaleness(),
		OversizeRepeatLimit: t.OversizeRepeatLimit,
		UnintelligibleLimit: t.UnintelligibleLimit,
		ClarificationLimit:  t.ClarificationLimit,
	})

	persona := ""
	if len(cfg.Bot.Personas) > 0 {
		persona = cfg.Bot.Personas[0]
	}
	d, err := dispatch.New(ctx, dispatch.Options{
		Store:          st,
		Machine:        machine,
		Resolver:       a.resolver,
		Service:        svc,
		Catalog:        src,
		Campaigns:      campaign.Builtin(src),
		StoreName:      cfg.Bot.StoreName,
		Apology:        cfg.Bot.Apology,
		DefaultPersona: persona,
	})
	if err != nil {
		a.Close()
		return nil, ctx, err
	}
	a.dispatcher = d

	logging.Boot("%s %s ready (store=%s, llm=%s)", cfg.Name, cfg.Version, cfg.Store.Backend, providerName(cfg))
	return a, ctx, nil
}

func providerName(cfg *config.Config) string {
	if !cfg.LLM.Enabled() {
		return "none"
	}
	return cfg.LLM.Provider
}

// Close releases the store and watcher and flushes usage.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.BootWarn("closing store: %v", err)
		}
	}
	if a.tracker != nil {
		if err := a.tracker.Save(); err != nil {
			logging.BootWarn("saving usage: %v", err)
		}
	}
}
