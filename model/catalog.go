package model

// Catalog is the ordered collection of loaded examples. A Catalog is
// read-only once published: reconciliation replaces the whole value by
// swapping a reference, so any reader still holding an older Catalog keeps
// a consistent view without locking.
type Catalog struct {
	examples []Example
	index    map[string]int
	version  uint64
}

// NewCatalog builds a catalog from examples in display order. The version
// counter distinguishes successive published catalogs.
func NewCatalog(examples []Example, version uint64) *Catalog {
	index := make(map[string]int, len(examples))
	for i, ex := range examples {
		index[ex.ID] = i
	}
	return &Catalog{examples: examples, index: index, version: version}
}

// EmptyCatalog returns a catalog with no entries.
func EmptyCatalog(version uint64) *Catalog {
	return NewCatalog(nil, version)
}

// Examples returns the entries in display order. The returned slice is a
// copy; the catalog itself stays immutable.
func (c *Catalog) Examples() []Example {
	out := make([]Example, len(c.examples))
	copy(out, c.examples)
	return out
}

// Get looks up an example by ID.
func (c *Catalog) Get(id string) (Example, bool) {
	i, ok := c.index[id]
	if !ok {
		return Example{}, false
	}
	return c.examples[i], true
}

// Has reports whether the catalog contains the given ID.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Len returns the number of examples.
func (c *Catalog) Len() int {
	return len(c.examples)
}

// Version returns the catalog's publish counter.
func (c *Catalog) Version() uint64 {
	return c.version
}
