package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// QueuedCommand is a write that failed on the network and waits for
// `lb sync`. The idempotency key travels with it so a replay of a request
// the server did apply comes back as a conflict instead of a second bid.
type QueuedCommand struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func queuePath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func LoadQueue() ([]QueuedCommand, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []QueuedCommand{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []QueuedCommand{}, nil
	}
	var out []QueuedCommand
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func SaveQueue(commands []QueuedCommand) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func PushQueue(cmd QueuedCommand) error {
	commands, err := LoadQueue()
	if err != nil {
		return err
	}
	return SaveQueue(append(commands, cmd))
}
