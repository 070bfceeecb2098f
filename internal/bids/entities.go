// Package bids implements the BIDS Incremental data object: one 4-D scan
// volume plus normalized metadata, with BIDS-compliant naming, archive
// serialization, and append/merge into an on-disk archive.
package bids

// Entity describes one recognized BIDS entity: a metadata key that
// participates in canonical file naming, as opposed to free-form metadata
// that goes to the JSON sidecar.
type Entity struct {
	// Name is the metadata key, e.g. "subject".
	Name string
	// Key is the filename prefix, e.g. "sub" in "sub-01".
	Key string
	// Format is "label" (alphanumeric) or "index" (integer).
	Format string
}

// entityOrder lists the recognized entities in the canonical filename order
// of BIDS 1.4.1. Filename derivation walks this slice, so its order is load
// bearing.
var entityOrder = []Entity{
	{Name: "subject", Key: "sub", Format: "label"},
	{Name: "session", Key: "ses", Format: "label"},
	{Name: "task", Key: "task", Format: "label"},
	{Name: "acquisition", Key: "acq", Format: "label"},
	{Name: "ceagent", Key: "ce", Format: "label"},
	{Name: "reconstruction", Key: "rec", Format: "label"},
	{Name: "direction", Key: "dir", Format: "label"},
	{Name: "run", Key: "run", Format: "index"},
	{Name: "modality", Key: "mod", Format: "label"},
	{Name: "echo", Key: "echo", Format: "index"},
	{Name: "flip", Key: "flip", Format: "index"},
	{Name: "inversion", Key: "inv", Format: "index"},
	{Name: "mtransfer", Key: "mt", Format: "label"},
	{Name: "part", Key: "part", Format: "label"},
	{Name: "processing", Key: "proc", Format: "label"},
	{Name: "hemisphere", Key: "hemi", Format: "label"},
	{Name: "space", Key: "space", Format: "label"},
	{Name: "split", Key: "split", Format: "index"},
	{Name: "recording", Key: "recording", Format: "label"},
	{Name: "chunk", Key: "chunk", Format: "index"},
}

// entitiesByName maps full entity names to their definitions.
var entitiesByName = func() map[string]Entity {
	m := make(map[string]Entity, len(entityOrder))
	for _, e := range entityOrder {
		m[e.Name] = e
	}
	return m
}()

// Entities returns the recognized entities in canonical filename order.
func Entities() []Entity {
	out := make([]Entity, len(entityOrder))
	copy(out, entityOrder)
	return out
}

// IsEntity reports whether name is a recognized BIDS entity name.
func IsEntity(name string) bool {
	_, ok := entitiesByName[name]
	return ok
}

// FilterEntities returns the subset of md whose keys are recognized BIDS
// entities.
func FilterEntities(md Metadata) Metadata {
	out := make(Metadata)
	for k, v := range md {
		if IsEntity(k) {
			out[k] = v
		}
	}
	return out
}
