// Command broadcastd runs the audio broadcaster: it captures PCM audio
// from a local input device and fans it out to WebTransport subscribers
// over HTTP/3.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/TaoEngine/outdoor-aerial-server/internal/broadcast"
	"github.com/TaoEngine/outdoor-aerial-server/internal/capture"
	"github.com/TaoEngine/outdoor-aerial-server/internal/config"
	"github.com/TaoEngine/outdoor-aerial-server/internal/fanout"
	"github.com/TaoEngine/outdoor-aerial-server/internal/httpapi"
	"github.com/TaoEngine/outdoor-aerial-server/internal/router"
	"github.com/TaoEngine/outdoor-aerial-server/internal/tlsconfig"
	"github.com/TaoEngine/outdoor-aerial-server/internal/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			slog.Error("invalid configuration", "err", cfgErr)
			return 1
		}
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		// any other parse error: the flag package already printed usage.
		return 1
	}

	instanceID := uuid.NewString()
	slog.Info("starting broadcastd", "instance_id", instanceID, "addr", cfg.Addr, "http_addr", cfg.HTTPAddr)

	hostname, _, _ := net.SplitHostPort(cfg.Addr)
	tlsConf, err := tlsconfig.Load(cfg.CertFile, cfg.KeyFile, hostname)
	if err != nil {
		slog.Error("tls setup failed", "err", err)
		return 1
	}

	hub := fanout.New(cfg.QueueCap)

	source := capture.New(capture.Config{
		Device:     cfg.Device,
		BlockSize:  cfg.BlockSize,
		Channels:   cfg.Channels,
		SampleRate: cfg.SampleRate,
		Format:     cfg.SampleFmt,
	}, func(block []byte) {
		hub.Enqueue(fanout.Block(block))
	})

	rtr := router.New()
	rtr.Add(cfg.BroadcastPath, broadcast.NewFactory(hub), nil)

	adapter := transport.New(cfg.Addr, tlsConf, cfg.IdleTimeout, rtr)

	statsFn := func() httpapi.Stats {
		return httpapi.Stats{
			ActiveSubscribers: hub.SubscriberCount(),
			BlocksDropped:     hub.Dropped(),
			QueueDepth:        hub.Len(),
			SampleRate:        cfg.SampleRate,
			Channels:          cfg.Channels,
			BlockSize:         cfg.BlockSize,
			Format:            cfg.SampleFmt,
		}
	}
	api := httpapi.New(statsFn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	hubDone := make(chan error, 1)
	go func() {
		hubDone <- hub.Start(source)
	}()

	blockBytes := capture.Config{BlockSize: cfg.BlockSize, Channels: cfg.Channels, Format: cfg.SampleFmt}.BytesPerBlock()
	go logMetrics(ctx, hub, uint64(blockBytes), 5*time.Second)

	adapterErrCh := make(chan error, 1)
	go func() { adapterErrCh <- adapter.Run(ctx) }()

	apiErrCh := make(chan error, 1)
	go func() { apiErrCh <- api.Run(ctx, cfg.HTTPAddr) }()

	var exitCode int
	select {
	case err := <-hubDone:
		if err != nil {
			slog.Error("capture failed to start", "err", err)
			exitCode = 1
		}
		cancel()
	case err := <-adapterErrCh:
		if err != nil {
			slog.Error("webtransport listener failed", "err", err)
			exitCode = 1
		}
		cancel()
	case <-ctx.Done():
	}

	hub.Stop()
	<-adapterErrCh
	<-apiErrCh

	slog.Info("broadcastd stopped")
	return exitCode
}

func logMetrics(ctx context.Context, hub *fanout.Hub, blockBytes uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("metrics",
				"component", "metrics",
				"subscribers", hub.SubscriberCount(),
				"queue_depth", hub.Len(),
				"dropped_blocks", hub.Dropped(),
				"dropped_bytes_estimate", humanize.Bytes(hub.Dropped()*blockBytes),
			)
		}
	}
}
