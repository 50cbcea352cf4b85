package schema

import "sync"

type projectionKey struct {
	entity   string
	contexts string
}

// Cache holds compiled documents and context projections. Entries are
// replaced atomically as whole values, so concurrent readers never observe
// partial state.
type Cache struct {
	mu          sync.RWMutex
	docs        map[string]*Document
	projections map[projectionKey]Projection
}

func NewCache() *Cache {
	return &Cache{
		docs:        make(map[string]*Document),
		projections: make(map[projectionKey]Projection),
	}
}

func (c *Cache) Doc(entity string) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[entity]
	return doc, ok
}

func (c *Cache) PutDoc(entity string, doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[entity] = doc
}

func (c *Cache) Projection(entity, contexts string) (Projection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projections[projectionKey{entity, contexts}]
	return p, ok
}

func (c *Cache) PutProjection(entity, contexts string, p Projection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projections[projectionKey{entity, contexts}] = p
}

// Invalidate drops the document and every projection for one entity.
func (c *Cache) Invalidate(entity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, entity)
	for key := range c.projections {
		if key.entity == entity {
			delete(c.projections, key)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]*Document)
	c.projections = make(map[projectionKey]Projection)
}
