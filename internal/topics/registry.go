// Package topics groups authors whose recent messages share enough
// keywords into TTL-bounded topic sessions, so replies to one member can
// draw context from the whole group.
package topics

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papo-dev/papo/internal/logging"
)

// Config holds the merge thresholds and lifetime of topic sessions.
type Config struct {
	MinKeywords int           // below this, no session is assigned
	MinShared   int           // shared keywords required to merge
	Similarity  float64       // minimum Jaccard similarity to merge
	TTL         time.Duration // inactivity before a session expires
	KeywordCap  int           // maximum keywords retained per session
}

// Session is one live topic: its keyword set, member authors, and
// activity bookkeeping.
type Session struct {
	ID           string
	Keywords     map[string]bool
	Members      map[string]bool
	LastActivity time.Time
	Turns        int
}

// MemberIDs returns the member author ids in stable order.
func (s *Session) MemberIDs() []string {
	ids := make([]string, 0, len(s.Members))
	for id := range s.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry owns the live sessions. It is shared across author tasks, so
// every mutating operation takes the one registry lock.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	byAuthor map[string]string // author id -> session id
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates an empty registry. now may be nil.
func NewRegistry(cfg Config, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		byAuthor: make(map[string]string),
		now:      now,
		stopChan: make(chan struct{}),
	}
}

// Start begins periodic TTL eviction.
func (r *Registry) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Stop halts the eviction loop.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Assign extracts keywords from text and places the author into the best
// matching session, creating one when nothing qualifies. Returns nil when
// the text carries too few keywords to be worth a session.
func (r *Registry) Assign(authorID, text string) *Session {
	keywords := ExtractKeywords(text)
	if len(keywords) < r.cfg.MinKeywords {
		return nil
	}

	kwSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		kwSet[k] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.cleanupLocked(now)

	// Best-scoring session that clears both the shared-keyword floor and
	// the similarity threshold. Membership only grows through this merge.
	var best *Session
	var bestScore float64
	for _, s := range r.sessions {
		shared := sharedCount(kwSet, s.Keywords)
		if shared < r.cfg.MinShared {
			continue
		}
		score := jaccard(kwSet, s.Keywords)
		if score < r.cfg.Similarity {
			continue
		}
		if score > bestScore {
			best = s
			bestScore = score
		}
	}

	if best != nil {
		r.detachLocked(authorID)
		best.Members[authorID] = true
		r.byAuthor[authorID] = best.ID
		r.unionLocked(best, kwSet)
		best.LastActivity = now
		best.Turns++
		logging.Debug("topics", "merged %s into session %s (score %.2f, members %d)",
			authorID, best.ID, bestScore, len(best.Members))
		return best
	}

	r.detachLocked(authorID)
	s := &Session{
		ID:           uuid.NewString(),
		Keywords:     kwSet,
		Members:      map[string]bool{authorID: true},
		LastActivity: now,
		Turns:        1,
	}
	r.sessions[s.ID] = s
	r.byAuthor[authorID] = s.ID
	logging.Debug("topics", "new session %s for %s (%d keywords)", s.ID, authorID, len(kwSet))
	return s
}

// SessionFor returns the author's live session, or nil.
func (r *Registry) SessionFor(authorID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked(r.now())
	id, ok := r.byAuthor[authorID]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

// Touch refreshes the author's session activity without re-extracting
// keywords (used when the engine replies into the session).
func (r *Registry) Touch(authorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byAuthor[authorID]; ok {
		if s, ok := r.sessions[id]; ok {
			s.LastActivity = r.now()
		}
	}
}

// Release drops the author's topic assignment (conversation ended).
func (r *Registry) Release(authorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked(authorID)
}

// Cleanup evicts sessions idle past the TTL, releasing their authors.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked(r.now())
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) cleanupLocked(now time.Time) {
	for id, s := range r.sessions {
		if now.Sub(s.LastActivity) < r.cfg.TTL {
			continue
		}
		for member := range s.Members {
			if r.byAuthor[member] == id {
				delete(r.byAuthor, member)
			}
		}
		delete(r.sessions, id)
		logging.Debug("topics", "expired session %s", id)
	}
}

func (r *Registry) detachLocked(authorID string) {
	id, ok := r.byAuthor[authorID]
	if !ok {
		return
	}
	delete(r.byAuthor, authorID)
	if s, ok := r.sessions[id]; ok {
		delete(s.Members, authorID)
		if len(s.Members) == 0 {
			delete(r.sessions, id)
		}
	}
}

// unionLocked merges keywords into the session up to the cap, preferring
// to keep the established set.
func (r *Registry) unionLocked(s *Session, kw map[string]bool) {
	for k := range kw {
		if len(s.Keywords) >= r.cfg.KeywordCap {
			break
		}
		s.Keywords[k] = true
	}
}

func sharedCount(a, b map[string]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

func jaccard(a, b map[string]bool) float64 {
	shared := sharedCount(a, b)
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
