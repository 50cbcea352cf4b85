package schema

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"lattice-backend/internal/translate"
)

// Service orchestrates loading, validation, caching and projection of schema
// documents.
type Service struct {
	loader     *Loader
	cache      *Cache
	translator translate.Translator
	logger     zerolog.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	// softDelete records whether the soft-delete mechanism is registered.
	// A schema soft_delete flag without the mechanism silently no-ops.
	softDelete bool
}

func NewService(loader *Loader, tr translate.Translator, logger zerolog.Logger) *Service {
	if tr == nil {
		tr = translate.Noop{}
	}
	return &Service{
		loader:     loader,
		cache:      NewCache(),
		translator: tr,
		logger:     logger,
	}
}

// RegisterSoftDelete enables the soft-delete mechanism for configured models.
func (s *Service) RegisterSoftDelete() {
	s.softDelete = true
}

// SoftDeleteRegistered reports whether the mechanism is available.
func (s *Service) SoftDeleteRegistered() bool {
	return s.softDelete
}

// Load returns the validated document for an entity, from cache when warm.
func (s *Service) Load(name string) (*Document, error) {
	if doc, ok := s.cache.Doc(name); ok {
		return doc, nil
	}

	doc, err := s.loader.Load(name)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc, s.loader.Exists); err != nil {
		return nil, err
	}

	s.cache.PutDoc(name, doc)
	return doc, nil
}

// ProjectFor loads an entity's document and filters it for a context
// specifier, caching the result per (entity, context-set).
func (s *Service) ProjectFor(name, contexts string) (Projection, error) {
	contexts = strings.TrimSpace(contexts)
	if p, ok := s.cache.Projection(name, contexts); ok {
		return p, nil
	}

	doc, err := s.Load(name)
	if err != nil {
		return nil, err
	}

	p := Project(doc, contexts, s.translator)
	s.cache.PutProjection(name, contexts, p)
	return p, nil
}

// Invalidate drops cached state for one entity.
func (s *Service) Invalidate(name string) {
	s.cache.Invalidate(name)
}

// Clear drops all cached state.
func (s *Service) Clear() {
	s.cache.Clear()
}

// Watch invalidates cache entries when a schema source file changes.
func (s *Service) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range s.loader.Paths() {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})
	go s.watchLoop()

	s.logger.Info().Strs("paths", s.loader.Paths()).Msg("watching schema directories")
	return nil
}

// StopWatch stops the source-change watcher.
func (s *Service) StopWatch() {
	if s.watcher == nil {
		return
	}
	close(s.stopCh)
	s.watcher.Close()
	s.watcher = nil
}

func (s *Service) watchLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			entity := entityFromFile(event.Name)
			if entity == "" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.cache.Invalidate(entity)
				s.logger.Info().Str("entity", entity).Str("file", event.Name).Msg("schema changed, cache invalidated")
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("schema watcher error")
		}
	}
}

func entityFromFile(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".yaml" && ext != ".yml" {
		return ""
	}
	return strings.TrimSuffix(base, ext)
}
