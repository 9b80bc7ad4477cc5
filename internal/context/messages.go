package context

import "github.com/driftcode/agentcore/pkg/models"

// EstimateTokens is a pluggable token estimator for a message; the default
// is a cheap character-count heuristic. Providers that report exact usage
// update TokenState separately (see internal/tokens) — this estimate only
// feeds the context-budget bookkeeping the message store itself needs.
type EstimateTokens func(*models.Message) int

// DefaultEstimateTokens approximates token count as one token per four
// characters of content, tool-call input, and tool-result content.
func DefaultEstimateTokens(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	chars := len(msg.Content)
	for _, b := range msg.Blocks {
		chars += len(b.Text)
	}
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range msg.ToolResults {
		chars += len(tr.Content)
	}
	return chars / 4
}

// MessageStore holds the ordered messages for an active session plus a
// parallel sequence of per-message token estimates kept strictly in
// lockstep: both slices always share the same indices and are mutated
// together by Add, Set, and Clear.
type MessageStore struct {
	messages   []*models.Message
	tokenCache []int
	estimate   EstimateTokens
}

// NewMessageStore returns an empty store using the default token estimator.
func NewMessageStore() *MessageStore {
	return &MessageStore{estimate: DefaultEstimateTokens}
}

// NewMessageStoreWithEstimator returns an empty store using a custom token
// estimator, useful for tests that want deterministic counts.
func NewMessageStoreWithEstimator(estimate EstimateTokens) *MessageStore {
	return &MessageStore{estimate: estimate}
}

// Add appends a message, computing and caching its token estimate
// immediately.
func (s *MessageStore) Add(msg *models.Message) {
	s.messages = append(s.messages, msg)
	s.tokenCache = append(s.tokenCache, s.estimate(msg))
}

// Set replaces every message in the store, rebuilding the token cache for
// the new list.
func (s *MessageStore) Set(messages []*models.Message) {
	s.messages = messages
	s.tokenCache = make([]int, len(messages))
	for i, m := range messages {
		s.tokenCache[i] = s.estimate(m)
	}
}

// Get returns a copy of the message slice.
func (s *MessageStore) Get() []*models.Message {
	out := make([]*models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Slice returns the internal message slice without copying. Callers must
// not mutate it.
func (s *MessageStore) Slice() []*models.Message {
	return s.messages
}

// Clear empties both the message list and the token cache.
func (s *MessageStore) Clear() {
	s.messages = nil
	s.tokenCache = nil
}

// TotalTokens sums the cached per-message token estimates.
func (s *MessageStore) TotalTokens() int {
	total := 0
	for _, t := range s.tokenCache {
		total += t
	}
	return total
}

// CachedTokens returns the cached token estimate for the message at index,
// and false if index is out of bounds.
func (s *MessageStore) CachedTokens(index int) (int, bool) {
	if index < 0 || index >= len(s.tokenCache) {
		return 0, false
	}
	return s.tokenCache[index], true
}

// Len returns the current message count.
func (s *MessageStore) Len() int {
	return len(s.messages)
}

// IsEmpty reports whether the store holds no messages.
func (s *MessageStore) IsEmpty() bool {
	return len(s.messages) == 0
}
