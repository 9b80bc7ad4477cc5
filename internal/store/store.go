// Package store implements the event store (spec §4.A): an append-only,
// content-addressed, parent-linked event tree with a session registry and
// blob storage, behind one interface with in-memory and SQLite-backed
// implementations.
package store

import (
	"context"
	"errors"

	"github.com/driftcode/agentcore/pkg/models"
)

// Sentinel errors returned by Store implementations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidParent   = errors.New("invalid parent event")
	ErrNotFound        = errors.New("not found")
)

// Store is the event store's full surface: session creation, event
// append/query, and blob storage.
type Store interface {
	CreateSession(ctx context.Context, model, workingDir, title string) (*models.Session, *models.Event, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, includeArchived bool, limit int) ([]*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ArchiveSession(ctx context.Context, sessionID string, archived bool) error
	UpdateSessionModel(ctx context.Context, sessionID, model string) error

	// Append writes a new event under session sessionID. If parentID is
	// empty, the session's current head is used. The session head is
	// advanced to the new event's ID as part of the same transaction.
	Append(ctx context.Context, sessionID string, eventType models.EventType, payload []byte, parentID string) (*models.Event, error)

	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	GetAncestors(ctx context.Context, eventID string) ([]*models.Event, error)
	GetDescendants(ctx context.Context, eventID string) ([]*models.Event, error)
	GetBranches(ctx context.Context, sessionID string) ([]models.Branch, error)
	GetEventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.Event, error)

	StoreBlob(ctx context.Context, data []byte, mimeType string) (string, error)
	GetBlob(ctx context.Context, blobID string) ([]byte, error)
	IncrementRefCount(ctx context.Context, blobID string) error
	DecrementRefCount(ctx context.Context, blobID string) error
	DeleteUnreferenced(ctx context.Context) (int, error)
}
