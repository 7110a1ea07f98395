package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/notice-watch/internal/logger"
)

// State is the persisted record of which notices were already handled.
type State struct {
	Initialized bool     `json:"initialized"`
	SeenIDs     []string `json:"seen_ids"`
	UpdatedAt   *string  `json:"updated_at"`
}

// NewState returns the state used before the first run.
func NewState() *State {
	return &State{SeenIDs: []string{}}
}

// Touch sets UpdatedAt to t in UTC with second precision.
func (s *State) Touch(t time.Time) {
	stamp := t.UTC().Truncate(time.Second).Format(time.RFC3339)
	s.UpdatedAt = &stamp
}

// Storage handles persistence of the state file
type Storage struct {
	path string
}

// New creates a Storage for the state file at path. A leading "~/" is
// expanded to the user's home directory.
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("state path is empty")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return &Storage{path: path}, nil
}

// Path returns the resolved state file path.
func (s *Storage) Path() string {
	return s.path
}

// Load reads the state file. A missing file, invalid JSON or a payload that
// is not a JSON object all produce a fresh state; only filesystem errors are
// returned.
func (s *Storage) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	state, err := decodeState(data)
	if err != nil {
		logger.Warn("State file unreadable, starting fresh", logger.Fields{
			"path":  s.path,
			"error": err.Error(),
		})
		return NewState(), nil
	}
	return state, nil
}

// decodeState parses the state leniently, field by field, so one ill-typed
// field does not discard the others.
func decodeState(data []byte) (*State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if fields == nil {
		return nil, errors.New("state is not a JSON object")
	}

	state := NewState()

	if raw, ok := fields["initialized"]; ok {
		var initialized bool
		if json.Unmarshal(raw, &initialized) == nil {
			state.Initialized = initialized
		}
	}

	if raw, ok := fields["seen_ids"]; ok {
		state.SeenIDs = decodeIDs(raw)
	}

	if raw, ok := fields["updated_at"]; ok {
		var updatedAt *string
		if json.Unmarshal(raw, &updatedAt) == nil {
			state.UpdatedAt = updatedAt
		}
	}

	return state, nil
}

// decodeIDs accepts string and numeric ids and drops anything else.
func decodeIDs(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := decodeID(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func decodeID(item json.RawMessage) string {
	var id string
	if json.Unmarshal(item, &id) == nil {
		return id
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()
	if dec.Decode(&num) == nil {
		return num.String()
	}
	return ""
}

// Save writes the state atomically: the JSON goes to a temporary file in the
// same directory, is synced, then renamed over the state file.
func (s *Storage) Save(state *State) error {
	if state.SeenIDs == nil {
		state.SeenIDs = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting state file mode: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
