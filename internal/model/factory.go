package model

import (
	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
)

// Factory produces configured model instances from schema documents. It is
// the single construction path for the primary entity and for every
// relationship target or through entity, so the model layer only ever sees
// resolved handles.
type Factory struct {
	schemas *schema.Service
	store   *store.Store
}

func NewFactory(schemas *schema.Service, st *store.Store) *Factory {
	return &Factory{schemas: schemas, store: st}
}

// Model configures a model with its relationships. Relationship participants
// are configured without their own relationships, which keeps mutually
// referencing schemas from recursing.
func (f *Factory) Model(name string) (*Model, error) {
	doc, err := f.schemas.Load(name)
	if err != nil {
		return nil, err
	}
	return Configure(doc, shallowResolver{f}, f.store, f.schemas.SoftDeleteRegistered())
}

// Base configures a model without relationship accessors.
func (f *Factory) Base(name string) (*Model, error) {
	doc, err := f.schemas.Load(name)
	if err != nil {
		return nil, err
	}
	return Configure(doc, nil, f.store, f.schemas.SoftDeleteRegistered())
}

// shallowResolver resolves relationship participants as base models.
type shallowResolver struct {
	f *Factory
}

func (r shallowResolver) Model(name string) (*Model, error) {
	return r.f.Base(name)
}
