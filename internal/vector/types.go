// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector

import "time"

// Metadata keys the filter understands.
const (
	MetaLayer    = "layer"
	MetaAgentID  = "agent_id"
	MetaCategory = "category"
)

// Result is a single nearest-neighbour hit.
type Result struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"` // lower = more similar; 0.0 = identical
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Config selects and configures one backend. Only the sub-config matching
// Provider is consulted.
type Config struct {
	Provider  string
	Timeout   time.Duration // per remote call; 0 uses DefaultTimeout
	SQLiteVec *SQLiteVecConfig
	Chromem   *ChromemConfig
	Qdrant    *QdrantConfig
	Milvus    *MilvusConfig
	PGVector  *PGVectorConfig
}

// SQLiteVecConfig configures the embedded sqlite-vec backend.
type SQLiteVecConfig struct {
	Path string // database file; empty uses DefaultSQLitePath
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string // persistence directory; empty keeps everything in memory
	Compress   bool
	Collection string
}

// QdrantConfig configures the remote Qdrant backend.
type QdrantConfig struct {
	URL        string
	Collection string
	APIKey     string
}

// MilvusConfig configures the remote Milvus backend.
type MilvusConfig struct {
	URI        string
	Collection string
	Username   string
	Password   string
}

// PGVectorConfig configures the PostgreSQL pgvector backend.
type PGVectorConfig struct {
	DSN   string
	Table string
}

// CallTimeout returns the configured per-call timeout or DefaultTimeout.
func (c Config) CallTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}
