// Package machine keeps a random per-installation identifier in the state
// directory, so a host keeps its server id across restarts.
package machine

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"spacenet/pkg/appdir"

	"github.com/google/uuid"
)

const uidFile = "machine-id"

// Namespace seeds the server ids derived by ServerID.
var Namespace = uuid.MustParse("6f1f3c2e-5d0b-4a53-9a0e-2b7c1f4d8e61")

var (
	mu             sync.Mutex
	machineIDCache []byte
)

// ID returns the 16-byte machine identifier, creating it on first use.
func ID() ([]byte, error) {
	mu.Lock()
	defer mu.Unlock()
	if machineIDCache != nil {
		return machineIDCache, nil
	}
	path, err := appdir.Path(uidFile)
	if err != nil {
		return nil, err
	}
	id, err := loadOrCreate(path)
	if err != nil {
		return nil, err
	}
	machineIDCache = id
	return id, nil
}

// ServerID derives a stable server identifier for the host called name.
func ServerID(name string) (uuid.UUID, error) {
	id, err := ID()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(Namespace, append(append([]byte(nil), id...), name...)), nil
}

func loadOrCreate(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		idStr := strings.TrimSpace(string(content))
		if len(idStr) != 32 {
			return nil, fmt.Errorf("machine: %s holds %d characters, want 32", path, len(idStr))
		}
		id, err := hex.DecodeString(idStr)
		if err != nil {
			return nil, fmt.Errorf("machine: cannot decode %s: %w", path, err)
		}
		return id, nil
	case errors.Is(err, os.ErrNotExist):
		id := make([]byte, 16)
		if _, err := rand.Read(id); err != nil {
			return nil, fmt.Errorf("machine: generate id: %w", err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(id)), 0o644); err != nil {
			return nil, fmt.Errorf("machine: cannot write %s: %w", path, err)
		}
		return id, nil
	default:
		return nil, fmt.Errorf("machine: %w", err)
	}
}
