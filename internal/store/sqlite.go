package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftcode/agentcore/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on top of a single SQLite database file, the
// on-disk backend used outside of tests.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig configures the SQLite connection.
type SQLiteConfig struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLiteConfig returns sane defaults for a single-process server.
func DefaultSQLiteConfig(path string) *SQLiteConfig {
	return &SQLiteConfig{
		Path:            path,
		MaxOpenConns:    1, // SQLite allows one writer; the persister already serialises.
		ConnMaxLifetime: time.Hour,
	}
}

// NewSQLiteStore opens (creating if absent) the database at cfg.Path and
// applies the schema migration.
func NewSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite config is required")
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying connection for migration tooling.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	working_dir TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	head_event_id TEXT NOT NULL,
	root_event_id TEXT NOT NULL,
	archived INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	parent_id TEXT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	workspace_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMP NOT NULL,
	type TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	payload BLOB
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id);

CREATE TABLE IF NOT EXISTS blobs (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL UNIQUE,
	data BLOB NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	original_size INTEGER NOT NULL,
	compressed_size INTEGER NOT NULL,
	compression TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	ref_count INTEGER NOT NULL DEFAULT 1
);
`

func applySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, model, workingDir, title string) (*models.Session, *models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	sessionID := models.NewSessionID()
	now := time.Now().UTC()
	root := &models.Event{
		ID:        models.NewEventID(),
		SessionID: sessionID,
		Timestamp: now,
		Type:      models.EventSessionStart,
		Sequence:  0,
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, parent_id, session_id, workspace_id, timestamp, type, sequence, payload) VALUES (?, NULL, ?, '', ?, ?, ?, ?)`,
		root.ID, sessionID, now, string(root.Type), root.Sequence, root.Payload,
	); err != nil {
		return nil, nil, fmt.Errorf("insert root event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, model, working_dir, title, created_at, head_event_id, root_event_id, archived) VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		sessionID, model, workingDir, title, now, root.ID, root.ID,
	); err != nil {
		return nil, nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	sess := &models.Session{
		ID: sessionID, Model: model, WorkingDir: workingDir, Title: title,
		CreatedAt: now, HeadEventID: root.ID, RootEventID: root.ID,
	}
	return sess, root, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model, working_dir, title, created_at, head_event_id, root_event_id, archived FROM sessions WHERE id = ?`,
		sessionID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var archived int
	if err := row.Scan(&sess.ID, &sess.Model, &sess.WorkingDir, &sess.Title, &sess.CreatedAt, &sess.HeadEventID, &sess.RootEventID, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	sess.Archived = archived != 0
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, includeArchived bool, limit int) ([]*models.Session, error) {
	query := `SELECT id, model, working_dir, title, created_at, head_event_id, root_event_id, archived FROM sessions`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var sess models.Session
		var archived int
		if err := rows.Scan(&sess.ID, &sess.Model, &sess.WorkingDir, &sess.Title, &sess.CreatedAt, &sess.HeadEventID, &sess.RootEventID, &archived); err != nil {
			return nil, err
		}
		sess.Archived = archived != 0
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ArchiveSession(ctx context.Context, sessionID string, archived bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET archived = ? WHERE id = ?`, boolToInt(archived), sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateSessionModel(ctx context.Context, sessionID, model string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET model = ? WHERE id = ?`, model, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, eventType models.EventType, payload []byte, parentID string) (*models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var head string
	if err := tx.QueryRowContext(ctx, `SELECT head_event_id FROM sessions WHERE id = ?`, sessionID).Scan(&head); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if parentID == "" {
		parentID = head
	}

	var parentSession string
	var parentSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT session_id, sequence FROM events WHERE id = ?`, parentID).Scan(&parentSession, &parentSeq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidParent
		}
		return nil, err
	}
	if parentSession != sessionID {
		return nil, ErrInvalidParent
	}

	evt := &models.Event{
		ID:        models.NewEventID(),
		ParentID:  &parentID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Sequence:  parentSeq + 1,
		Payload:   payload,
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, parent_id, session_id, workspace_id, timestamp, type, sequence, payload) VALUES (?, ?, ?, '', ?, ?, ?, ?)`,
		evt.ID, parentID, sessionID, evt.Timestamp, string(evt.Type), evt.Sequence, evt.Payload,
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET head_event_id = ? WHERE id = ?`, evt.ID, sessionID); err != nil {
		return nil, fmt.Errorf("advance head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return evt, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload FROM events WHERE id = ?`, eventID)
	return scanEvent(row)
}

func scanEvent(row *sql.Row) (*models.Event, error) {
	var evt models.Event
	var parentID sql.NullString
	if err := row.Scan(&evt.ID, &parentID, &evt.SessionID, &evt.WorkspaceID, &evt.Timestamp, &evt.Type, &evt.Sequence, &evt.Checksum, &evt.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parentID.Valid {
		evt.ParentID = &parentID.String
	}
	return &evt, nil
}

func (s *SQLiteStore) GetAncestors(ctx context.Context, eventID string) ([]*models.Event, error) {
	var chain []*models.Event
	cur := eventID
	for {
		evt, err := s.GetEvent(ctx, cur)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		chain = append(chain, evt)
		if evt.ParentID == nil {
			break
		}
		cur = *evt.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *SQLiteStore) GetDescendants(ctx context.Context, eventID string) ([]*models.Event, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	var out []*models.Event
	queue := []string{eventID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		rows, err := s.db.QueryContext(ctx,
			`SELECT id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload FROM events WHERE parent_id = ? ORDER BY sequence`, id)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var evt models.Event
			var parentID sql.NullString
			if err := rows.Scan(&evt.ID, &parentID, &evt.SessionID, &evt.WorkspaceID, &evt.Timestamp, &evt.Type, &evt.Sequence, &evt.Checksum, &evt.Payload); err != nil {
				rows.Close()
				return nil, err
			}
			if parentID.Valid {
				evt.ParentID = &parentID.String
			}
			out = append(out, &evt)
			queue = append(queue, evt.ID)
		}
		rows.Close()
	}
	return out, nil
}

func (s *SQLiteStore) GetBranches(ctx context.Context, sessionID string) ([]models.Branch, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id FROM events e LEFT JOIN events c ON c.parent_id = e.id WHERE e.session_id = ? AND c.id IS NULL`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaves []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		leaves = append(leaves, id)
	}

	branches := make([]models.Branch, 0, len(leaves))
	for _, leaf := range leaves {
		ancestors, err := s.GetAncestors(ctx, leaf)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(ancestors))
		for i, a := range ancestors {
			ids[i] = a.ID
		}
		branches = append(branches, models.Branch{
			HeadEventID: leaf,
			EventIDs:    ids,
			IsPrimary:   leaf == sess.HeadEventID,
		})
	}
	return branches, nil
}

func (s *SQLiteStore) GetEventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.Event, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `SELECT id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload FROM events WHERE session_id = ? ORDER BY sequence ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var evt models.Event
		var parentID sql.NullString
		if err := rows.Scan(&evt.ID, &parentID, &evt.SessionID, &evt.WorkspaceID, &evt.Timestamp, &evt.Type, &evt.Sequence, &evt.Checksum, &evt.Payload); err != nil {
			return nil, err
		}
		if parentID.Valid {
			evt.ParentID = &parentID.String
		}
		out = append(out, &evt)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) StoreBlob(ctx context.Context, data []byte, mimeType string) (string, error) {
	hash := models.HashContent(data)

	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM blobs WHERE hash = ?`, hash).Scan(&existing)
	if err == nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE blobs SET ref_count = ref_count + 1 WHERE id = ?`, existing); err != nil {
			return "", err
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id := models.NewBlobID(hash)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (id, hash, data, mime_type, original_size, compressed_size, created_at, ref_count) VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		id, hash, data, mimeType, len(data), len(data), time.Now().UTC(),
	); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) GetBlob(ctx context.Context, blobID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, blobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *SQLiteStore) IncrementRefCount(ctx context.Context, blobID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE blobs SET ref_count = ref_count + 1 WHERE id = ?`, blobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DecrementRefCount(ctx context.Context, blobID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE blobs SET ref_count = MAX(ref_count - 1, 0) WHERE id = ?`, blobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteUnreferenced(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE ref_count <= 0`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ Store = (*SQLiteStore)(nil)
