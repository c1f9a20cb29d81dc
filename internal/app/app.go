// Package app assembles glowlens from its configuration: the store, the
// landmark models, the cameras and one analysis session per subject kind.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/config"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/logger"
	"github.com/ayusman/glowlens/internal/render"
	"github.com/ayusman/glowlens/internal/server"
	"github.com/ayusman/glowlens/internal/session"
	"github.com/ayusman/glowlens/internal/store"
)

// Topologies are the subject kinds the app runs a session for.
var Topologies = []landmark.Topology{landmark.FaceMesh, landmark.Hand}

// Config holds options for New.
type Config struct {
	Settings *config.Config
	Logger   logrus.FieldLogger

	// NewSource builds the frame source for a topology. Nil opens cameras.
	NewSource func(t landmark.Topology, registry *capture.Registry) capture.FrameSource
	// NewBackend builds the landmark model for a topology. Nil runs MediaPipe.
	NewBackend func(t landmark.Topology) detector.Backend
	// Manual disables the rate-limited frame loop; the caller ticks sessions.
	Manual bool
}

// App owns every long-lived component.
type App struct {
	config   Config
	settings *config.Config
	log      logrus.FieldLogger

	store    *store.Store
	catalog  *catalog.Catalog
	renderer *render.Renderer
	registry *capture.Registry
	adapters []*detector.Adapter
	sessions map[string]*session.Session

	mu     sync.Mutex
	closed bool
}

// New opens the store and builds a session for each topology. Models are not
// loaded and cameras are not opened until a session starts.
func New(config Config) (*App, error) {
	if config.Settings == nil {
		return nil, errors.New("app: settings are required")
	}
	settings := config.Settings
	log := logger.OrDiscard(config.Logger)

	st, err := store.New(settings.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cat, err := catalog.Load()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	analyzer, err := analysis.New(cat)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		config:   config,
		settings: settings,
		log:      log,
		store:    st,
		catalog:  cat,
		renderer: render.New(0),
		registry: capture.NewRegistry(),
		sessions: make(map[string]*session.Session, len(Topologies)),
	}

	for _, t := range Topologies {
		adapter := detector.NewAdapter(a.backend(t), detector.Config{
			Topology:      t,
			MinConfidence: settings.MinConfidence,
		}, log)
		a.adapters = append(a.adapters, adapter)

		var sched session.Scheduler
		if !config.Manual {
			sched = session.NewRateScheduler(float64(settings.FPS))
		}

		sess, err := session.New(session.Config{
			Source:            a.source(t),
			Detector:          adapter,
			Analyzer:          analyzer,
			Renderer:          a.renderer,
			Snapshots:         st,
			Scheduler:         sched,
			LightingThreshold: settings.LowLight(t),
			LightingStride:    settings.LightingStride,
			StageDelay:        settings.StageDelay,
			Logger:            log,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create %s session: %w", t.Kind(), err)
		}
		a.sessions[t.Kind()] = sess
	}

	log.WithFields(logger.Fields{
		"data_dir": settings.DataDir,
		"sessions": len(a.sessions),
	}).Debug("app ready")
	return a, nil
}

func (a *App) source(t landmark.Topology) capture.FrameSource {
	if a.config.NewSource != nil {
		return a.config.NewSource(t, a.registry)
	}
	return capture.NewCamera(a.settings.Constraints(t), a.registry, a.log)
}

func (a *App) backend(t landmark.Topology) detector.Backend {
	if a.config.NewBackend != nil {
		return a.config.NewBackend(t)
	}
	return detector.NewMediaPipeBackend(detector.MediaPipeConfig{
		Topology: t,
		Python:   a.settings.Python,
		ModelDir: a.settings.ModelDir,
	}, a.log)
}

// Store returns the snapshot store.
func (a *App) Store() *store.Store {
	return a.store
}

// Catalog returns the palette catalog.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Session returns the session for a subject kind ("face" or "hand").
func (a *App) Session(kind string) (*session.Session, bool) {
	s, ok := a.sessions[kind]
	return s, ok
}

// Sessions returns every session keyed by subject kind.
func (a *App) Sessions() map[string]*session.Session {
	out := make(map[string]*session.Session, len(a.sessions))
	for k, s := range a.sessions {
		out[k] = s
	}
	return out
}

// Server builds the HTTP host over the app's sessions.
func (a *App) Server(staticDir string) *server.Server {
	return server.New(server.Config{
		StaticDir: staticDir,
		Store:     a.store,
		Catalog:   a.catalog,
		Sessions:  a.Sessions(),
		StreamFPS: a.settings.FPS,
		Logger:    a.log,
	})
}

// Close stops every session, shuts the landmark models down and closes the
// store. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for kind, s := range a.sessions {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s session: %w", kind, err))
		}
	}
	for _, d := range a.adapters {
		if err := d.Close(); err != nil {
			a.log.WithError(err).Warn("error closing landmark model")
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// FindWebDir searches for the web UI in "web", "../web", "../../web" and
// <dataDir>/web, returning the first existing directory or "".
func FindWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	if dataDir == "" {
		return ""
	}
	p := filepath.Join(dataDir, "web")
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return p
	}
	return ""
}
