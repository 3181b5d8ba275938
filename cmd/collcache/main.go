package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unkn0wn-root/collcache"
	"github.com/unkn0wn-root/collcache/collection/builtin"
	"github.com/unkn0wn-root/collcache/config"
	asynchook "github.com/unkn0wn-root/collcache/hooks/async"
	lrlog "github.com/unkn0wn-root/collcache/log/logrus"
	slogger "github.com/unkn0wn-root/collcache/log/slog"
	zaplog "github.com/unkn0wn-root/collcache/log/zap"
	"github.com/unkn0wn-root/collcache/sloghooks"
	"github.com/unkn0wn-root/collcache/supervisor"
	"github.com/unkn0wn-root/collcache/transport/httpapi"
)

const usageText = `usage: collcache [-c|-config source] [-d|-debug] [-h|-help] [source]

source is a path or an http(s) URL of the JSON configuration. Without one,
$%s is used, then %s next to the executable.

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("collcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		source string
		debug  bool
	)
	fs.StringVar(&source, "c", "", "configuration source (shorthand)")
	fs.StringVar(&source, "config", "", "configuration source")
	fs.BoolVar(&debug, "d", false, "force debug logging (shorthand)")
	fs.BoolVar(&debug, "debug", false, "force debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, usageText, config.EnvFile, config.DefaultFile)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	if source == "" && fs.NArg() > 0 {
		source = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, source, debug); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

func start(ctx context.Context, source string, forceDebug bool) error {
	cfg, err := config.Load(ctx, config.Source(source))
	if err != nil {
		return err
	}
	if forceDebug {
		cfg.Debug = true
	}
	srvOpts, err := httpapi.ParseOptions(cfg.Server, cfg.Workers)
	if err != nil {
		return &collcache.ConfigurationError{Reason: "server", Err: err}
	}
	if srvOpts.Mode == "" {
		srvOpts.Mode = "release"
		if cfg.Debug {
			srvOpts.Mode = "debug"
		}
	}

	log, flush, err := newLogger(cfg.Logger, cfg.Debug)
	if err != nil {
		return err
	}
	defer flush()

	hooks := asynchook.New(sloghooks.New(stdslog.New(slogger.Handler(cfg.Debug)), sloghooks.Options{}), 1, 1024)
	defer hooks.Close()

	factories := builtin.Factories()
	workerID, isWorker := supervisor.WorkerID()

	if cfg.Workers > 1 && !isWorker {
		if err := collcache.ValidateCollections(cfg, factories); err != nil {
			return err
		}
		log.Info("collcache.coordinator_started", collcache.Fields{"workers": cfg.Workers, "pid": os.Getpid()})
		sup := &supervisor.Supervisor{
			Launcher: supervisor.ExecLauncher{Args: os.Args[1:]},
			Workers:  cfg.Workers,
			Logger:   log,
			Hooks:    hooks,
		}
		return sup.Run(ctx)
	}

	cache, err := collcache.New(ctx, collcache.Options{
		Config:    cfg,
		Factories: factories,
		Logger:    log,
		Hooks:     hooks,
	})
	if err != nil {
		return err
	}
	defer cache.Close(context.Background())

	log.Info("collcache.worker_serving", collcache.Fields{"worker": workerID, "pid": os.Getpid(), "addr": srvOpts.Addr})
	return httpapi.New(cache, log, srvOpts).ListenAndServe(ctx)
}

func newLogger(kind string, debug bool) (collcache.Logger, func(), error) {
	switch kind {
	case "logrus":
		return lrlog.New(debug), func() {}, nil
	case "slog":
		return slogger.New(debug), func() {}, nil
	default:
		z, err := zaplog.New(debug)
		if err != nil {
			return nil, nil, err
		}
		return z, func() { _ = z.Sync() }, nil
	}
}
