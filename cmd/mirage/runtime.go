package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Hausmaster333/MirageGen/internal/audio"
	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
	"github.com/Hausmaster333/MirageGen/internal/bus"
	"github.com/Hausmaster333/MirageGen/internal/engine"
	"github.com/Hausmaster333/MirageGen/internal/presets"
	"github.com/Hausmaster333/MirageGen/internal/stream"
)

// runtime is one engine with everything it talks to.
type runtime struct {
	events  *bus.EventBus
	engine  *engine.Engine
	library *presets.Library
	chat    *stream.ChatClient
	metrics bool // serve the metrics endpoint
}

func newRuntime() (*runtime, error) {
	events := bus.NewEventBus()
	library := presets.NewLibrary(cfg.Presets, events, logs.Component("presets"))
	chat := stream.NewChatClient(cfg.Server, logger)

	eng, err := engine.New(cfg.Engine, engine.Deps{
		Player:  audio.NewClockPlayer(cfg.Audio, logger),
		Stream:  stream.NewClient(cfg.Server, nil, events, logger),
		Chat:    chat,
		Presets: library,
		Audio:   cfg.Audio,
		Events:  events,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	events.Subscribe(bus.EventAudioSegmentFailed, func(e bus.Event) {
		logger.Warn().Interface("data", e.Data).Msg("Audio segment skipped")
	})
	events.SubscribeMultiple([]bus.EventType{
		bus.EventStreamSessionOpened,
		bus.EventStreamSessionClosed,
		bus.EventStreamFrameDropped,
	}, func(e bus.Event) {
		logger.Debug().Str("event", string(e.Type)).Interface("data", e.Data).Msg("Stream event")
	})
	events.Subscribe(bus.EventPresetsReloaded, func(e bus.Event) {
		name, _ := e.Data["preset"].(string)
		logger.Info().Str("preset", name).Msg("Preset reloaded")
		if !library.IsLoop(name) {
			return
		}
		if err := eng.ReloadLoops(context.Background()); err != nil {
			logger.Warn().Err(err).Str("preset", name).Msg("Keeping previous idle and thinking loops")
		}
	})

	return &runtime{events: events, engine: eng, library: library, chat: chat}, nil
}

// serve runs the engine, the metrics endpoint and the preset watcher until
// ctx is done or one of them fails. extra runs alongside them; when it
// returns nil the whole group shuts down.
func (r *runtime) serve(ctx context.Context, extra func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := r.engine.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-r.engine.Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.engine.Stop()
		return nil
	})

	if r.metrics && cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Listen, ReadHeaderTimeout: 5 * time.Second}
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		srv.Handler = mux

		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Listen).Msg("Metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Presets.Watch && cfg.Presets.Dir != "" {
		g.Go(func() error { return r.library.Watch(gctx) })
	}

	if extra != nil {
		g.Go(func() error {
			if err := extra(gctx); err != nil {
				return err
			}
			return errDone
		})
	}

	err := g.Wait()
	r.events.Wait()
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

var errDone = errors.New("done")

// waitIdle blocks until nothing is generating, speaking or playing a
// response clip.
func (r *runtime) waitIdle(ctx context.Context) (engine.Snapshot, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap, err := r.engine.Snapshot(ctx)
		if err != nil {
			return engine.Snapshot{}, err
		}
		if !snap.Generating && !snap.Speaking && snap.QueueLen == 0 && snap.State == avatar3d.StateIdle {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}
