package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

const schemaVersion = 1

// ErrCorrupt is returned when a stored session blob cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

type envelope struct {
	Version int      `json:"v"`
	Session *Session `json:"s"`
}

func encode(s *Session) ([]byte, error) {
	return json.Marshal(envelope{Version: schemaVersion, Session: s})
}

func decode(data []byte) (*Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != schemaVersion || env.Session == nil {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorrupt, env.Version)
	}
	return env.Session, nil
}
