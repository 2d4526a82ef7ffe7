package domain

import "fmt"

// State is the learning stage of a schedule.
type State int

const (
	StateNew State = iota // never reviewed in this queue
	StateLearning
	StateReview
	StateRelearning
)

var (
	stateNames = [...]string{
		StateNew:        "New",
		StateLearning:   "Learning",
		StateReview:     "Review",
		StateRelearning: "Relearning",
	}
	stateByName = map[string]State{
		"New":        StateNew,
		"Learning":   StateLearning,
		"Review":     StateReview,
		"Relearning": StateRelearning,
	}
)

// IsValid reports whether s is one of the four defined states.
func (s State) IsValid() bool {
	return s >= StateNew && s <= StateRelearning
}

func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid state: %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, ok := stateByName[string(text)]
	if !ok {
		return fmt.Errorf("invalid state: %q", text)
	}
	*s = v
	return nil
}
