package domain

// PropertyOp is the operator of a frontmatter-property exclusion rule.
type PropertyOp string

const (
	OpEquals   PropertyOp = "equals"
	OpContains PropertyOp = "contains"
	OpExists   PropertyOp = "exists"
)

// PropertyFilter excludes notes by a frontmatter property predicate.
type PropertyFilter struct {
	Name  string     `json:"name"`
	Op    PropertyOp `json:"op"`
	Value string     `json:"value,omitempty"` // unused for exists
}

// OrderStrategy selects how due notes are ordered when a session starts.
type OrderStrategy string

const (
	OrderOverdueFirst      OrderStrategy = "overdue-first"
	OrderChronological     OrderStrategy = "chronological"
	OrderRandom            OrderStrategy = "random"
	OrderDifficultyAsc     OrderStrategy = "difficulty-asc"
	OrderDifficultyDesc    OrderStrategy = "difficulty-desc"
	OrderStatePriority     OrderStrategy = "state-priority"
	OrderRetrievabilityAsc OrderStrategy = "retrievability-asc"
	OrderLoadBalanced      OrderStrategy = "load-balanced"
)

// SelectionMode chooses which default criteria the vault-wide settings express.
type SelectionMode string

const (
	SelectFolders SelectionMode = "folder"
	SelectTags    SelectionMode = "tag"
)

// Settings is the user-editable configuration persisted in the document.
type Settings struct {
	SelectionMode      SelectionMode    `json:"selection_mode"`
	TrackedFolders     []string         `json:"tracked_folders,omitempty"`
	TrackedTags        []string         `json:"tracked_tags,omitempty"`
	ExcludedNoteNames  []string         `json:"excluded_note_names,omitempty"`
	ExcludedTags       []string         `json:"excluded_tags,omitempty"`
	ExcludedProperties []PropertyFilter `json:"excluded_properties,omitempty"`
	QueueOrderStrategy OrderStrategy    `json:"queue_order_strategy"`
	NewCardsPerDay     int              `json:"new_cards_per_day"`
	MaxReviewsPerDay   int              `json:"max_reviews_per_day"`
	UndoStackSize      int              `json:"undo_stack_size"`
	DesiredRetention   float64          `json:"desired_retention"`
}

// DefaultSettings returns the settings used for a fresh document and to fill
// fields missing from older document versions.
func DefaultSettings() Settings {
	return Settings{
		SelectionMode:      SelectFolders,
		TrackedFolders:     []string{""}, // whole vault
		QueueOrderStrategy: OrderOverdueFirst,
		NewCardsPerDay:     20,
		MaxReviewsPerDay:   200,
		UndoStackSize:      50,
		DesiredRetention:   0.9,
	}
}

// DefaultCriteria derives queue criteria from the vault-wide tracking settings.
func (s Settings) DefaultCriteria() Criteria {
	if s.SelectionMode == SelectTags {
		return Criteria{Kind: CriteriaTag, Tags: s.TrackedTags}
	}
	return Criteria{Kind: CriteriaFolder, Folders: s.TrackedFolders}
}
