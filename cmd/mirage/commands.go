package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hausmaster333/MirageGen/internal/bus"
	"github.com/Hausmaster333/MirageGen/internal/config"
	"github.com/Hausmaster333/MirageGen/internal/engine"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND (interactive)
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	var batched bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the avatar and answer lines read from stdin",
		Long: `Run the engine with the metrics endpoint and preset watcher, reading one
request per line from stdin. Each line replaces the request before it.

Examples:
  mirage run
  mirage run --batched`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			rt.metrics = true

			rt.events.Subscribe(bus.EventEngineGenerationFinished, func(e bus.Event) {
				if msg, ok := e.Data["error"]; ok {
					fmt.Fprintf(os.Stderr, "! %v\n", msg)
					return
				}
				fmt.Printf("< %v\n", e.Data["text"])
			})
			rt.events.Subscribe(bus.EventEngineStateChanged, func(e bus.Event) {
				logger.Debug().Interface("to", e.Data["to"]).Msg("Avatar state")
			})

			ctx, cancel := signalContext()
			defer cancel()

			return rt.serve(ctx, func(ctx context.Context) error {
				lines := make(chan string)
				go func() {
					defer close(lines)
					scanner := bufio.NewScanner(os.Stdin)
					for scanner.Scan() {
						lines <- scanner.Text()
					}
				}()

				for {
					select {
					case <-ctx.Done():
						return nil
					case line, ok := <-lines:
						if !ok {
							_, err := rt.waitIdle(ctx)
							if errors.Is(err, context.Canceled) {
								return nil
							}
							return err
						}
						line = strings.TrimSpace(line)
						if line == "" {
							continue
						}
						if batched {
							go func() {
								if err := rt.engine.Chat(ctx, line); err != nil && !errors.Is(err, engine.ErrSuperseded) {
									logger.Warn().Err(err).Msg("Chat failed")
								}
							}()
						} else if err := rt.engine.Ask(ctx, line); err != nil && !errors.Is(err, engine.ErrSuperseded) {
							logger.Warn().Err(err).Msg("Ask failed")
						}
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&batched, "batched", false, "use the batched chat endpoint instead of streaming")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// ONE-SHOT COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [text]",
		Short: "Stream one response and play it to the end",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(strings.Join(args, " "), func(ctx context.Context, e *engine.Engine, text string) error {
				return e.Ask(ctx, text)
			})
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [text]",
		Short: "Request one complete response and play it to the end",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(strings.Join(args, " "), func(ctx context.Context, e *engine.Engine, text string) error {
				return e.Chat(ctx, text)
			})
		},
	}
}

func oneShot(text string, request func(ctx context.Context, e *engine.Engine, text string) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	var failure error
	rt.events.Subscribe(bus.EventEngineGenerationFinished, func(e bus.Event) {
		if msg, ok := e.Data["error"]; ok {
			failure = fmt.Errorf("generation failed: %v", msg)
		}
	})

	ctx, cancel := signalContext()
	defer cancel()

	return rt.serve(ctx, func(ctx context.Context) error {
		if err := request(ctx, rt.engine, text); err != nil {
			return err
		}
		snap, err := rt.waitIdle(ctx)
		if err != nil {
			return err
		}
		rt.events.Wait()
		if failure != nil {
			return failure
		}
		fmt.Println(snap.Transcript)
		return nil
	})
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the generation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			health, err := rt.chat.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", health.Status)
			for name, ok := range health.Components {
				fmt.Printf("  %-12s %t\n", name, ok)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PRESETS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func presetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Inspect the preset library",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			names, err := rt.library.Actions()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	})

	var duration float32
	show := &cobra.Command{
		Use:   "show [emotion]",
		Short: "Print the gesture played for an emotion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			m, err := rt.library.ForEmotion(args[0], duration)
			if err != nil {
				return err
			}
			if _, err := m.Clip(args[0]); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
	show.Flags().Float32Var(&duration, "duration", 2, "gesture duration in seconds")
	cmd.AddCommand(show)

	var gestureFor time.Duration
	play := &cobra.Command{
		Use:   "play [emotion]",
		Short: "Play the gesture for an emotion on the avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return rt.serve(ctx, func(ctx context.Context) error {
				if err := rt.engine.Gesture(ctx, args[0], gestureFor); err != nil {
					return err
				}
				_, err := rt.waitIdle(ctx)
				return err
			})
		},
	}
	play.Flags().DurationVar(&gestureFor, "duration", 2*time.Second, "gesture duration")
	cmd.AddCommand(play)

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Mirage Configuration:")
			fmt.Println("─────────────────────")
			fmt.Printf("Server:          %s\n", cfg.Server.BaseURL)
			fmt.Printf("Session Timeout: %s\n", cfg.Server.SessionTimeout)
			fmt.Printf("Tick Rate:       %d Hz\n", cfg.Engine.TickRate)
			fmt.Printf("Presets Dir:     %s\n", cfg.Presets.Dir)
			fmt.Printf("Audio Format:    %s\n", cfg.Audio.Format)
			fmt.Printf("Metrics:         %t (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Listen)
			fmt.Printf("Log Level:       %s\n", cfg.Logging.Level)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the current configuration to ~/.mirage/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	})

	return cmd
}
