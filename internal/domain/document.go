package domain

// DocumentVersion is the current schema version of the persisted document.
const DocumentVersion = 2

// Document is the full persisted state. The store holds the authoritative
// in-memory copy and flushes it through a backend.
type Document struct {
	Version  int              `json:"version"`
	Settings Settings         `json:"settings"`
	Queues   []*Queue         `json:"queues"`
	Cards    map[string]*Card `json:"cards"` // keyed by item path
	Reviews  []*ReviewLog     `json:"reviews"`
	Orphans  []*OrphanRecord  `json:"orphans"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		Settings: DefaultSettings(),
		Cards:    make(map[string]*Card),
	}
}

// Queue returns the queue with the given id, or nil.
func (d *Document) Queue(id string) *Queue {
	for _, q := range d.Queues {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// QueueByName returns the queue with the given display name, or nil.
func (d *Document) QueueByName(name string) *Queue {
	for _, q := range d.Queues {
		if q.Name == name {
			return q
		}
	}
	return nil
}

// Orphan returns the orphan record with the given id, or nil.
func (d *Document) Orphan(id string) *OrphanRecord {
	for _, o := range d.Orphans {
		if o.ID == id {
			return o
		}
	}
	return nil
}
