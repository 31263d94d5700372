package settings

import (
	"encoding/json"
	"sync"
	"time"
)

var (
	dbConfigMu        sync.RWMutex
	dbConfigValues    map[string]json.RawMessage
	dbConfigUpdatedAt time.Time
)

// StoreDBConfig replaces the in-memory settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		copied[key] = value
	}

	dbConfigMu.Lock()
	dbConfigValues = copied
	dbConfigUpdatedAt = updatedAt
	dbConfigMu.Unlock()
}

// DBConfigValue returns the raw snapshot value for a key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	dbConfigMu.RLock()
	defer dbConfigMu.RUnlock()
	if dbConfigValues == nil {
		return nil, false
	}
	value, ok := dbConfigValues[key]
	return value, ok
}

// DBConfigUpdatedAt returns the snapshot's newest row timestamp.
func DBConfigUpdatedAt() time.Time {
	dbConfigMu.RLock()
	defer dbConfigMu.RUnlock()
	return dbConfigUpdatedAt
}

// ResetDBConfig clears the snapshot. Intended for tests.
func ResetDBConfig() {
	dbConfigMu.Lock()
	dbConfigValues = nil
	dbConfigUpdatedAt = time.Time{}
	dbConfigMu.Unlock()
}
