package syncer

import (
	"encoding/json"
	"os"
	"time"
)

// runState remembers where an interrupted incremental run stopped, so
// the next run can hand the walker a resume marker instead of
// re-walking completed pages. Missing or unreadable state simply means
// a fresh walk.
type runState struct {
	Category string    `json:"category"`
	LastURL  string    `json:"lastUrl"`
	SavedAt  time.Time `json:"savedAt"`
}

func loadRunState(path string) *runState {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var state runState
	if err := json.Unmarshal(data, &state); err != nil || state.Category == "" || state.LastURL == "" {
		return nil
	}
	return &state
}

func saveRunState(path string, state runState) {
	state.SavedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	// Best effort: losing the marker only costs re-scanning card lists.
	_ = os.WriteFile(path, data, 0o644)
}

func clearRunState(path string) {
	_ = os.Remove(path)
}
