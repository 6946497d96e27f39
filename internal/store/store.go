// ABOUTME: Store interface and data types for agent/credential persistence
// ABOUTME: Defines Agent, Field structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrAgentNotFound is returned when a requested agent does not exist.
var ErrAgentNotFound = errors.New("agent not found")

// Field type constants for agent submission fields.
const (
	FieldTypeText = "text" // Plain text form value
	FieldTypeFile = "file" // File attachment slot
)

// Field is one named submission input an agent declares. Order matters:
// the submit form renders fields in declaration order.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" or "file"
}

// Agent is a named credential/configuration entry for submitting jobs
// to the upstream API.
type Agent struct {
	Name      string
	Label     string
	APIKey    string
	Fields    []Field
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines persistence operations for agent definitions.
type Store interface {
	// SaveAgent inserts or updates an agent keyed by name.
	SaveAgent(ctx context.Context, agent *Agent) error

	// GetAgent returns the agent with the given name, or ErrAgentNotFound.
	GetAgent(ctx context.Context, name string) (*Agent, error)

	// ListAgents returns all agents ordered by creation time.
	ListAgents(ctx context.Context) ([]*Agent, error)

	// DeleteAgent removes the agent with the given name, or ErrAgentNotFound.
	DeleteAgent(ctx context.Context, name string) error

	// FirstAgent returns the oldest configured agent, or ErrAgentNotFound
	// when none exist. Supports the fallback-credential policy.
	FirstAgent(ctx context.Context) (*Agent, error)

	// Close releases the underlying resources.
	Close() error
}
