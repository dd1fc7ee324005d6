package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/TFMV/bikedash"
	"github.com/TFMV/bikedash/config"
	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/flight"
	"github.com/TFMV/bikedash/present"
	"github.com/TFMV/bikedash/render"
	"github.com/TFMV/bikedash/storage"
	"github.com/TFMV/bikedash/web"
	"github.com/docopt/docopt.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

const usage = `Bike Sharing Data Analysis Dashboard.

Usage:
  bikedash serve [--config=<file>] [--data=<path>] [--addr=<addr>] [--flight=<addr>]
  bikedash render --view=<view> --out=<path> [--config=<file>] [--data=<path>]
  bikedash export --out=<path> [--config=<file>] [--data=<path>]
  bikedash (-h | --help)
  bikedash --version

Options:
  -h --help         Show this screen.
  --version         Show version.
  --config=<file>   YAML configuration file.
  --data=<path>     Daily rentals dataset (CSV or Arrow IPC snapshot).
  --addr=<addr>     HTTP listen address.
  --flight=<addr>   Arrow Flight listen address; disabled when empty.
  --view=<view>     View to render, by label or slug.
  --out=<path>      Output directory (render) or snapshot file (export).
`

func main() {
	arguments, err := docopt.ParseArgs(usage, os.Args[1:], "bikedash version "+version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(arguments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	session := bikedash.NewSession(cfg.Data.Path, db.LoaderSettings{
		MaxFailures: cfg.Data.MaxFailures,
		Timeout:     cfg.Data.BreakerTimeout,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flag(arguments, "serve"):
		err = serve(ctx, cfg, session, logger)
	case flag(arguments, "render"):
		view, _ := arguments.String("--view")
		out, _ := arguments.String("--out")
		err = renderView(ctx, cfg, session, view, out, logger)
	case flag(arguments, "export"):
		out, _ := arguments.String("--out")
		err = session.Export(ctx, out, storage.Options{Compression: storage.Compression(cfg.Data.Compression)})
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func flag(arguments docopt.Opts, name string) bool {
	v, _ := arguments.Bool(name)
	return v
}

// loadConfig layers command line flags over the file and environment.
func loadConfig(arguments docopt.Opts) (*config.Config, error) {
	file, _ := arguments.String("--config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if v, err := arguments.String("--data"); err == nil && v != "" {
		cfg.Data.Path = v
	}
	if v, err := arguments.String("--addr"); err == nil && v != "" {
		cfg.Server.Addr = v
	}
	if v, err := arguments.String("--flight"); err == nil && v != "" {
		cfg.Flight.Addr = v
	}
	return cfg, cfg.Validate()
}

type flightServer interface {
	Addr() net.Addr
	Serve() error
	Shutdown()
}

func serve(ctx context.Context, cfg *config.Config, session *bikedash.Session, logger *zap.Logger) error {
	if _, err := session.Table(ctx); err != nil {
		// The dashboard still starts and reports the problem on every page.
		logger.Warn("dataset not loaded", zap.String("path", session.Path()), zap.Error(err))
	}

	handler := web.NewHandler(session, logger, web.Options{
		ChartWidth:  cfg.Charts.Width,
		ChartHeight: cfg.Charts.Height,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var fs flightServer
	if cfg.Flight.Addr != "" {
		var err error
		if fs, err = flight.NewServer(cfg.Flight.Addr, flight.NewService(session, logger)); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting dashboard", zap.String("addr", cfg.Server.Addr), zap.String("data", session.Path()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if fs != nil {
		g.Go(func() error {
			logger.Info("Starting Flight server", zap.String("addr", fs.Addr().String()))
			return fs.Serve()
		})
		g.Go(func() error {
			<-ctx.Done()
			fs.Shutdown()
			return nil
		})
	}

	if cfg.Data.WatchInterval > 0 {
		g.Go(func() error {
			return session.Watch(ctx, cfg.Data.WatchInterval)
		})
	}

	return g.Wait()
}

// renderView writes every chart of one view as numbered PNG files.
func renderView(ctx context.Context, cfg *config.Config, session *bikedash.Session, name, dir string, logger *zap.Logger) error {
	v, err := present.ParseView(name)
	if err != nil {
		return err
	}
	page, err := session.Page(ctx, v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for i, c := range page.Charts {
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", v.Slug(), i))
		if err := writePNG(path, c, cfg.Charts.Width, cfg.Charts.Height); err != nil {
			return err
		}
		logger.Info("Rendered chart", zap.String("title", c.Title), zap.String("path", path))
	}
	return nil
}

func writePNG(path string, c present.Chart, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render.PNG(f, c, width, height); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %q: %w", c.Title, err)
	}
	return f.Close()
}
