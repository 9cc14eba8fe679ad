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

	"SharedSketch/internal/config"
	"SharedSketch/internal/edit"
	"SharedSketch/internal/logging"
	sknet "SharedSketch/internal/net"
	"SharedSketch/internal/session"
	"SharedSketch/internal/state"
	"SharedSketch/internal/telemetry"
	"SharedSketch/internal/ui"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	version   = "dev"
	frameRate = 60
	// joinArg makes the device look for a host on the local network
	// instead of taking a share link.
	joinArg = "join"
)

// peerEvents hands transport callbacks to the session goroutine.
type peerEvents ui.Dispatch

func (p peerEvents) Connected(peer string) {
	p(func(c *session.Coordinator) { c.PeerConnected(peer) })
}

func (p peerEvents) Received(peer string, data []byte) {
	p(func(c *session.Coordinator) { c.Receive(peer, data) })
}

func (p peerEvents) Disconnected(peer string) {
	p(func(c *session.Coordinator) { c.PeerDisconnected(peer) })
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sharedsketch:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(os.Getenv("SKETCH_CONFIG"))
	if err != nil {
		return err
	}
	browse := false
	if len(args) > 0 {
		switch {
		case config.IsLink(args[0]):
			cfg.Peer = args[0]
		case args[0] == joinArg:
			browse = true
		default:
			return fmt.Errorf("unexpected argument %q", args[0])
		}
	}

	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	device := state.NewDeviceID()
	telemetry.SetBuildInfo(version, device)
	log = log.With(zap.String("device", cfg.DeviceName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	loop := session.NewLoop(1024)
	camera := ui.NewCamera()
	lens := cfg.Drawing.Lens()

	var coord *session.Coordinator
	dispatch := ui.Dispatch(func(fn func(*session.Coordinator)) {
		loop.Post(func() { fn(coord) })
	})
	window := ui.NewApp(ctx, "SharedSketch - "+cfg.DeviceName, camera, lens, dispatch, log)
	endpoint := sknet.NewEndpoint(peerEvents(dispatch), sknet.Options{
		DeviceName:      cfg.DeviceName,
		WriteTimeout:    cfg.WriteTimeout.Duration,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}, log)

	editOpts := edit.DefaultOptions()
	editOpts.Lens = lens
	editOpts.Distance = cfg.Drawing.Distance
	editOpts.MinSegmentLength = cfg.Drawing.MinSegmentLength
	coord = session.NewCoordinator(session.Deps{
		Self:     device,
		Pipe:     endpoint,
		Camera:   camera,
		WorldMap: camera,
		Sink:     window.Board(),
		Observer: window,
		Poster:   loop,
		Edit:     editOpts,
		Log:      log,
	})

	g.Go(func() error {
		if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return frames(ctx, loop, coord, camera) })

	switch {
	case cfg.Peer != "" || browse:
		g.Go(func() error {
			join(ctx, cfg, endpoint, window, log)
			<-ctx.Done()
			endpoint.Close()
			return nil
		})
	default:
		if err := host(ctx, g, cfg, endpoint, window, log); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, log) })
	}
	g.Go(func() error {
		<-ctx.Done()
		window.Quit()
		return nil
	})

	log.Info("starting", zap.String("version", version), zap.String("id", device))
	window.Run()
	stop()
	return g.Wait()
}

func host(ctx context.Context, g *errgroup.Group, cfg config.Config, endpoint *sknet.Endpoint, window *ui.App, log *zap.Logger) error {
	log.Info("starting as host", zap.Int("port", cfg.Port))
	addr := fmt.Sprintf(":%d", cfg.Port)
	g.Go(func() error { return endpoint.Listen(ctx, addr) })

	link := config.ShareLink(sknet.OutgoingIP(), cfg.Port)
	window.SetNote("Share link: " + link)
	log.Info("share link", zap.String("link", link))

	if !cfg.Discovery {
		return nil
	}
	server, err := sknet.Advertise(cfg.DeviceName, cfg.Port)
	if err != nil {
		// The share link still works without discovery.
		log.Warn("mdns advertise", zap.Error(err))
		return nil
	}
	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown()
	})
	return nil
}

func join(ctx context.Context, cfg config.Config, endpoint *sknet.Endpoint, window *ui.App, log *zap.Logger) {
	var addr string
	if cfg.Peer != "" {
		a, err := config.ParseLink(cfg.Peer)
		if err != nil {
			window.Error(err)
			return
		}
		addr = a
	} else {
		window.SetNote("Looking for a host...")
		svc, err := sknet.FirstHost(ctx, 5*time.Second)
		if err != nil {
			window.Error(err)
			return
		}
		log.Info("found host", zap.String("name", svc.Name), zap.String("addr", svc.Addr))
		addr = svc.Addr
	}

	log.Info("starting as client", zap.String("host", addr))
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := endpoint.Dial(dialCtx, addr); err != nil {
		window.SetNote("Connection failed")
		window.Error(err)
		return
	}
	window.SetNote("Connected to " + addr)
}

// frames drives the editor at the display rate and reports normal tracking.
func frames(ctx context.Context, loop *session.Loop, coord *session.Coordinator, camera *ui.Camera) error {
	tick := time.NewTicker(time.Second / frameRate)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			normal := camera.TrackingNormal()
			loop.Post(func() {
				coord.Tick()
				if normal {
					coord.TrackingNormal()
				}
			})
		}
	}
}

func serveMetrics(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
