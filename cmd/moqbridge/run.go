package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suhasHere/moqbridge/client"
	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/status"
	"github.com/suhasHere/moqbridge/track"
)

const defaultReadyTimeout = 10 * time.Second

type runOptions struct {
	engine      string
	publish     []string
	duration    time.Duration
	metricsAddr string
}

func newRunCmd(o *rootOptions) *cobra.Command {
	r := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, publish namespaces and stay connected until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			return runSession(ctx, cfg, r, o.logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&r.engine, "engine", "loopback", "engine: loopback, native or a .wasm guest module")
	f.StringArrayVar(&r.publish, "publish", nil, "namespace to publish, parts separated by '/' (repeatable)")
	f.DurationVar(&r.duration, "duration", 0, "disconnect after this long (0 waits for a signal)")
	f.StringVar(&r.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runSession(ctx context.Context, cfg *config.Config, r *runOptions, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := client.NewMetrics(reg)
	client.DefaultDispatcher().Instrument(metrics)
	defer client.DefaultDispatcher().Instrument(nil)

	eng, closeEngine, err := openEngine(ctx, r.engine)
	if err != nil {
		return err
	}
	defer closeEngine()

	g, gctx := errgroup.WithContext(ctx)
	sessionDone := make(chan struct{})

	if r.metricsAddr != "" {
		srv := &http.Server{
			Addr:              r.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", r.metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-sessionDone:
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer close(sessionDone)
		return session(gctx, cfg, r, client.Options{
			Engine:  eng,
			Logger:  log,
			Metrics: metrics,
			OnStatus: func(s status.Status) {
				log.Info("status", zap.Stringer("status", s))
			},
		})
	})
	return g.Wait()
}

func session(ctx context.Context, cfg *config.Config, r *runOptions, opts client.Options) error {
	c, err := client.Connect(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	log := opts.Logger.With(zap.Stringer("client_id", c.ID()))

	readyTimeout := defaultReadyTimeout
	if cfg.ConnectTimeout != nil && *cfg.ConnectTimeout > 0 {
		readyTimeout = *cfg.ConnectTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, readyTimeout)
	err = c.WaitReady(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for relay: %w", err)
	}

	wctx := ctx
	if r.duration > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, r.duration)
		defer cancel()
	}

	// Engines may never report a setup payload.
	sctx, cancel := context.WithTimeout(wctx, readyTimeout)
	setup, err := c.ServerSetup(sctx)
	cancel()
	if err == nil {
		log.Info("server setup", zap.ByteString("payload", setup.Payload))
	} else {
		log.Debug("no server setup", zap.Error(err))
	}

	for _, p := range r.publish {
		t, err := c.Publish(ctx, track.ParseNamespace(p), nil)
		if err != nil {
			return fmt.Errorf("publish %s: %w", p, err)
		}
		log.Info("publishing", zap.Stringer("track", t))
	}

	if s, err := c.Wait(wctx, status.Status.IsFinal); err == nil {
		log.Warn("engine ended the session", zap.Stringer("status", s))
	}

	return c.Shutdown(context.WithoutCancel(ctx))
}
