package store

import (
	"context"
	"sync"
	"time"

	"github.com/driftcode/agentcore/pkg/models"
)

// MemoryStore is an in-memory Store, used by every test in this repo and
// suitable as a single-process development backend.
type MemoryStore struct {
	mu sync.Mutex

	sessions map[string]*models.Session
	events   map[string]*models.Event
	children map[string][]string // parent event ID -> child event IDs, insertion order

	blobsByID   map[string]*models.Blob
	blobsByHash map[string]string // hash -> blob ID
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*models.Session),
		events:      make(map[string]*models.Event),
		children:    make(map[string][]string),
		blobsByID:   make(map[string]*models.Blob),
		blobsByHash: make(map[string]string),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, model, workingDir, title string) (*models.Session, *models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := models.NewSessionID()
	root := &models.Event{
		ID:        models.NewEventID(),
		ParentID:  nil,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Type:      models.EventSessionStart,
		Sequence:  0,
	}
	sess := &models.Session{
		ID:          sessionID,
		Model:       model,
		WorkingDir:  workingDir,
		Title:       title,
		CreatedAt:   root.Timestamp,
		HeadEventID: root.ID,
		RootEventID: root.ID,
	}

	s.sessions[sessionID] = sess
	s.events[root.ID] = root

	out := *sess
	rootCopy := *root
	return &out, &rootCopy, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *sess
	return &out, nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, includeArchived bool, limit int) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.Archived && !includeArchived {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sortSessionsByCreatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortSessionsByCreatedDesc(sessions []*models.Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].CreatedAt.After(sessions[j-1].CreatedAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	for id, evt := range s.events {
		if evt.SessionID == sessionID {
			delete(s.events, id)
			delete(s.children, id)
		}
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) ArchiveSession(ctx context.Context, sessionID string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Archived = archived
	return nil
}

func (s *MemoryStore) UpdateSessionModel(ctx context.Context, sessionID, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Model = model
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, eventType models.EventType, payload []byte, parentID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if parentID == "" {
		parentID = sess.HeadEventID
	}
	parent, ok := s.events[parentID]
	if !ok || parent.SessionID != sessionID {
		return nil, ErrInvalidParent
	}

	evt := &models.Event{
		ID:        models.NewEventID(),
		ParentID:  strPtr(parentID),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Sequence:  parent.Sequence + 1,
		Payload:   payload,
	}

	s.events[evt.ID] = evt
	s.children[parentID] = append(s.children[parentID], evt.ID)
	sess.HeadEventID = evt.ID

	out := *evt
	return &out, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *evt
	return &out, nil
}

// GetAncestors returns the root-to-target chain, inclusive. Caller holds no
// lock assumption; this method takes its own.
func (s *MemoryStore) GetAncestors(ctx context.Context, eventID string) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chain []*models.Event
	cur, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	for {
		cp := *cur
		chain = append(chain, &cp)
		if cur.ParentID == nil {
			break
		}
		parent, ok := s.events[*cur.ParentID]
		if !ok {
			break
		}
		cur = parent
	}
	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// GetDescendants returns every event whose parent chain includes eventID,
// in breadth-first discovery order.
func (s *MemoryStore) GetDescendants(ctx context.Context, eventID string) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, ErrNotFound
	}

	var out []*models.Event
	queue := []string{eventID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, childID := range s.children[id] {
			child := s.events[childID]
			cp := *child
			out = append(out, &cp)
			queue = append(queue, childID)
		}
	}
	return out, nil
}

// GetBranches returns every leaf event in the session as a branch head.
func (s *MemoryStore) GetBranches(ctx context.Context, sessionID string) ([]models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	var leaves []string
	for id, evt := range s.events {
		if evt.SessionID != sessionID {
			continue
		}
		if len(s.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}

	branches := make([]models.Branch, 0, len(leaves))
	for _, leaf := range leaves {
		eventIDs := s.pathToRootLocked(leaf)
		branches = append(branches, models.Branch{
			HeadEventID: leaf,
			EventIDs:    eventIDs,
			IsPrimary:   leaf == sess.HeadEventID,
		})
	}
	return branches, nil
}

func (s *MemoryStore) pathToRootLocked(eventID string) []string {
	var ids []string
	cur, ok := s.events[eventID]
	for ok {
		ids = append(ids, cur.ID)
		if cur.ParentID == nil {
			break
		}
		cur, ok = s.events[*cur.ParentID]
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

func (s *MemoryStore) GetEventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	var all []*models.Event
	for _, evt := range s.events {
		if evt.SessionID == sessionID {
			cp := *evt
			all = append(all, &cp)
		}
	}
	sortEventsBySequence(all)

	if offset > 0 {
		if offset >= len(all) {
			return nil, nil
		}
		all = all[offset:]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortEventsBySequence(events []*models.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Sequence < events[j-1].Sequence; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

func (s *MemoryStore) StoreBlob(ctx context.Context, data []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := models.HashContent(data)
	if existing, ok := s.blobsByHash[hash]; ok {
		s.blobsByID[existing].RefCount++
		return existing, nil
	}

	id := models.NewBlobID(hash)
	blob := &models.Blob{
		ID:             id,
		Hash:           hash,
		Data:           data,
		MimeType:       mimeType,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(data)),
		CreatedAt:      time.Now().UTC(),
		RefCount:       1,
	}
	s.blobsByID[id] = blob
	s.blobsByHash[hash] = id
	return id, nil
}

func (s *MemoryStore) GetBlob(ctx context.Context, blobID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobsByID[blobID]
	if !ok {
		return nil, ErrNotFound
	}
	return blob.Data, nil
}

func (s *MemoryStore) IncrementRefCount(ctx context.Context, blobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobsByID[blobID]
	if !ok {
		return ErrNotFound
	}
	blob.RefCount++
	return nil
}

func (s *MemoryStore) DecrementRefCount(ctx context.Context, blobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobsByID[blobID]
	if !ok {
		return ErrNotFound
	}
	if blob.RefCount > 0 {
		blob.RefCount--
	}
	return nil
}

// DeleteUnreferenced sweeps every blob with RefCount 0 and returns the
// count removed.
func (s *MemoryStore) DeleteUnreferenced(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, blob := range s.blobsByID {
		if blob.RefCount <= 0 {
			delete(s.blobsByID, id)
			delete(s.blobsByHash, blob.Hash)
			removed++
		}
	}
	return removed, nil
}

func strPtr(s string) *string { return &s }

var _ Store = (*MemoryStore)(nil)
