package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/menta2k/image-regions/internal/config"
	"github.com/menta2k/image-regions/internal/server"
	"github.com/menta2k/image-regions/internal/store"
)

func main() {
	var cfgPath, addr, root string

	flag.StringVar(&cfgPath, "config", "", "configuration file (json or yaml), defaults to "+config.GetConfigPath())
	flag.StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	flag.StringVar(&root, "root", "", "image root directory, overrides server.image_root")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if root != "" {
		cfg.Server.ImageRoot = root
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var cache *store.Store
	if cfg.Cache.Enabled {
		cache, err = store.New(cfg.Cache.Path)
		if err != nil {
			log.Fatalf("failed to open decision cache: %v", err)
		}
		defer cache.Close()

		// Entries for replaced files are never hit again; drop them daily.
		go func() {
			for range time.Tick(24 * time.Hour) {
				if n, err := cache.Purge(time.Now().Add(-7 * 24 * time.Hour)); err != nil {
					log.Warnf("decision cache purge failed: %v", err)
				} else if n > 0 {
					log.Infof("purged %d cached decisions", n)
				}
			}
		}()
	}

	srv := server.New(cfg, cache)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal(err)
		}
	}()
	srv.Echo.Logger.Infof("serving %s on %s", cfg.Server.ImageRoot, cfg.Server.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown failed: %v", err)
	}
}
