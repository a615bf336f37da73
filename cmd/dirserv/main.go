// Command dirserv serves a directory tree over HTTP/1.x.
//
//	dirserv [-config file.yaml] [-host addr] [-log-level level] [port] [root]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"dqx0.com/go/dirserv/dirserv"
	"dqx0.com/go/dirserv/internal/config"
	"dqx0.com/go/dirserv/internal/obs"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	host := flag.String("host", "", "listen host (overrides config)")
	port := flag.Int("port", -1, "listen port (overrides config)")
	root := flag.String("root", "", "document root (overrides config)")
	level := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [port] [root]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := applyArgs(cfg, *host, *port, *root, *level, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	minLevel, _ := obs.ParseLevel(cfg.Log.Level)
	logger := obs.StdLogger{L: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds), Min: minLevel, Pref: cfg.Log.Prefix}
	tally := obs.NewTally()

	srv := &dirserv.Server{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Root:           cfg.Server.Root,
		Backlog:        cfg.Server.Backlog,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxLineBytes:   cfg.Server.MaxLineBytes,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		Logger:         logger,
		Meter:          tally,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx)
	tally.Report(logger)
	if err != nil && !errors.Is(err, dirserv.ErrServerClosed) {
		log.Fatalf("serve %s: %v", cfg.ServerAddress(), err)
	}
}

// applyArgs lays flags and positional arguments over cfg and validates the
// result.
func applyArgs(cfg *config.Config, host string, port int, root, level string, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("too many arguments: %q", args)
	}
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Server.Port = p
	}
	if len(args) > 1 {
		cfg.Server.Root = args[1]
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port >= 0 {
		cfg.Server.Port = port
	}
	if root != "" {
		cfg.Server.Root = root
	}
	if level != "" {
		cfg.Log.Level = level
	}
	return cfg.Validate()
}
