package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/statsgrid/pkg/api"
	"github.com/rubiojr/statsgrid/pkg/catalog"
	"github.com/rubiojr/statsgrid/pkg/config"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/log"
	"github.com/rubiojr/statsgrid/pkg/realtime"
	"github.com/rubiojr/statsgrid/pkg/search"
	"github.com/urfave/cli/v3"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and search event stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on (defaults to the configured one)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"), c.String("lang"))
		},
	}
}

// serve runs the API server and reloads datasources when the config file or
// a catalog file changes.
func serve(ctx context.Context, configPath, listen, lang string) error {
	logger := log.ForService("serve")

	env, err := loadEnvironment(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer env.Close()

	if listen == "" {
		listen = env.cfg.Listen
	}
	lang = pickLanguage(lang, env.cfg)

	hub := realtime.NewHub(64)
	service := search.NewService(env.catalog, env.store, search.WithListener(hub), search.WithLanguage(lang))

	mux := http.NewServeMux()
	api.NewServer(env.catalog, env.store, service, hub, lang).RegisterRoutes(mux)
	server := &http.Server{
		Addr:              listen,
		Handler:           api.CorsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting API server on http://%s", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	r := newReloader(configPath, env.cfg, env.registry, env.catalog)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close file watcher: %v", err)
			}
		}()
		r.watch(watcher)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	fmt.Println("Server started. Press Ctrl+C to stop, send SIGHUP to reload, or modify the config or catalog files for automatic reload.")

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if watcher != nil {
		events = watcher.Events
		watchErrors = watcher.Errors
	}

	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("API server: %w", err)
		case <-ctx.Done():
			return shutdown(server)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("Received SIGHUP, reloading configuration...")
				if err := r.reloadConfig(); err != nil {
					logger.Errorf("Failed to reload configuration: %v", err)
				}
				if watcher != nil {
					r.watch(watcher)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				fmt.Println("\nShutting down...")
				return shutdown(server)
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Editors often replace files with atomic renames
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(event.Name); os.IsNotExist(err) {
					logger.Warnf("%s was removed and not replaced, skipping reload", event.Name)
					continue
				}
				if err := watcher.Add(event.Name); err != nil {
					logger.Warnf("failed to re-add %s to watcher: %v", event.Name, err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			r.handleChange(ctx, event.Name)
			r.watch(watcher)
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			logger.Warnf("file watcher error: %v", err)
		}
	}
}

func shutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// reloader keeps the provider registry and catalog in sync with the config
// file and the files providers read.
type reloader struct {
	mu         sync.Mutex
	configPath string
	cfg        *config.Config
	registry   *core.Registry
	catalog    *catalog.Catalog
	watched    map[string]bool
	logger     *log.Logger
}

func newReloader(configPath string, cfg *config.Config, registry *core.Registry, cat *catalog.Catalog) *reloader {
	return &reloader{
		configPath: filepath.Clean(configPath),
		cfg:        cfg,
		registry:   registry,
		catalog:    cat,
		watched:    map[string]bool{},
		logger:     log.ForService("reload"),
	}
}

// sources maps every file a provider reads to the datasources reading it.
func (r *reloader) sources() map[string][]string {
	out := map[string][]string{}
	for name, p := range r.registry.GetAllProviders() {
		reloadable, ok := p.(core.Reloader)
		if !ok {
			continue
		}
		for _, src := range reloadable.Sources() {
			if src == "" {
				continue
			}
			src = filepath.Clean(src)
			out[src] = append(out[src], name)
		}
	}
	return out
}

// watch adds the config file and provider sources not yet watched.
func (r *reloader) watch(w *fsnotify.Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := []string{r.configPath}
	for src := range r.sources() {
		paths = append(paths, src)
	}
	for _, path := range paths {
		if r.watched[path] {
			continue
		}
		if err := w.Add(path); err != nil {
			r.logger.Warnf("failed to watch %s: %v", path, err)
			continue
		}
		r.watched[path] = true
		r.logger.Infof("Watching %s for changes", path)
	}
}

// handleChange reacts to a changed file: the config file reloads every
// datasource, a source file reloads the providers reading it.
func (r *reloader) handleChange(ctx context.Context, path string) {
	path = filepath.Clean(path)
	if path == r.configPath {
		r.logger.Infof("Config file changed, reloading configuration...")
		if err := r.reloadConfig(); err != nil {
			r.logger.Errorf("Failed to reload configuration: %v", err)
		}
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.sources()[path] {
		if err := r.reloadSourceLocked(ctx, name); err != nil {
			r.logger.Errorf("Failed to reload datasource %s: %v", name, err)
		}
	}
}

func (r *reloader) reloadSourceLocked(ctx context.Context, name string) error {
	p, err := r.registry.GetProvider(name)
	if err != nil {
		return err
	}
	reloadable, ok := p.(core.Reloader)
	if !ok {
		return nil
	}
	if err := reloadable.Reload(ctx); err != nil {
		return err
	}
	r.catalog.Invalidate(name)
	r.logger.Infof("Datasource %s reloaded", name)
	return nil
}

// reloadConfig replaces every provider with the ones in the config file.
// On error the previous providers stay in place.
func (r *reloader) reloadConfig() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	newCfg, err := config.LoadConfig(r.configPath)
	if err != nil {
		return fmt.Errorf("loading new config: %w", err)
	}

	// New providers are staged; the live registry is only touched once
	// all of them were created.
	staged := core.GetGlobalRegistry()
	if err := createProvidersFromConfig(staged, newCfg); err != nil {
		_ = staged.Close()
		return err
	}

	if err := r.registry.ReplaceProviders(staged.GetAllProviders()); err != nil {
		r.logger.Warnf("failed to close replaced datasources: %v", err)
	}

	r.catalog.Reset(newCfg.DatasourceInfos())
	r.cfg = newCfg
	r.logger.Infof("Configuration reload complete: %d datasources", len(newCfg.Datasources))
	return nil
}
