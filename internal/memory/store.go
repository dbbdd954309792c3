// Package memory provides the long-term memory bank.
//
// Memories are categorized notes (insights, user preferences) that outlive
// individual sessions but not the process.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/google/uuid"
)

// Sort orders accepted by List.
const (
	SortByCreatedAt    = "created_at"
	SortByAccessCount  = "access_count"
	SortByLastAccessed = "last_accessed"
)

// Store is the memory bank. A single mutex guards the entire store.
type Store struct {
	mu       sync.Mutex
	memories map[string]*domain.Memory
}

// NewStore creates an empty memory bank.
func NewStore() *Store {
	return &Store{
		memories: make(map[string]*domain.Memory),
	}
}

// Add stores a new memory and returns its id. Ids are unique for the
// process lifetime even under concurrent callers.
func (s *Store) Add(content, category string, metadata map[string]any) string {
	if category == "" {
		category = domain.CategoryGeneral
	}
	mem := &domain.Memory{
		ID:        uuid.NewString(),
		Content:   content,
		Category:  category,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[mem.ID] = mem
	return mem.ID
}

// Get returns a memory by id and records the access. Returns false if the
// memory does not exist.
func (s *Store) Get(id string) (domain.Memory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.memories[id]
	if !ok {
		return domain.Memory{}, false
	}
	touch(mem)
	return *mem, true
}

// List returns up to limit memories, optionally filtered by category,
// ordered newest/most-relevant first according to sortBy.
func (s *Store) List(category string, limit int, sortBy string) []domain.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*domain.Memory, 0, len(s.memories))
	for _, mem := range s.memories {
		if category == "" || mem.Category == category {
			matches = append(matches, mem)
		}
	}

	switch sortBy {
	case SortByAccessCount:
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].AccessCount > matches[j].AccessCount
		})
	case SortByLastAccessed:
		sort.Slice(matches, func(i, j int) bool {
			return lastAccessed(matches[i]).After(lastAccessed(matches[j]))
		})
	default: // created_at
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		})
	}

	return collect(matches, limit, false)
}

// Search matches the query case-insensitively against memory content and
// category, ranked by (access_count, created_at) descending. Access stats
// of the returned memories are updated.
func (s *Store) Search(query string, limit int) []domain.Memory {
	needle := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*domain.Memory, 0)
	for _, mem := range s.memories {
		if strings.Contains(strings.ToLower(mem.Content), needle) ||
			strings.Contains(strings.ToLower(mem.Category), needle) {
			matches = append(matches, mem)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].AccessCount != matches[j].AccessCount {
			return matches[i].AccessCount > matches[j].AccessCount
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return collect(matches, limit, true)
}

// Delete removes a memory. Returns false if it did not exist.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memories[id]; !ok {
		return false
	}
	delete(s.memories, id)
	return true
}

// Summary reports totals, per-category counts and the five most accessed
// memories. Summary reads do not update access stats.
func (s *Store) Summary() domain.MemorySummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make(map[string]int)
	all := make([]*domain.Memory, 0, len(s.memories))
	for _, mem := range s.memories {
		categories[mem.Category]++
		all = append(all, mem)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].AccessCount > all[j].AccessCount
	})
	if len(all) > 5 {
		all = all[:5]
	}

	digests := make([]domain.MemoryDigest, 0, len(all))
	for _, mem := range all {
		content := mem.Content
		if len(content) > 100 {
			content = content[:100] + "..."
		}
		digests = append(digests, domain.MemoryDigest{
			ID:          mem.ID,
			Content:     content,
			Category:    mem.Category,
			AccessCount: mem.AccessCount,
		})
	}

	return domain.MemorySummary{
		Total:        len(s.memories),
		Categories:   categories,
		MostAccessed: digests,
	}
}

// Clear removes all memories and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.memories)
	s.memories = make(map[string]*domain.Memory)
	return count
}

// collect copies up to limit memories, optionally recording the access.
// Caller must hold s.mu.
func collect(matches []*domain.Memory, limit int, recordAccess bool) []domain.Memory {
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	out := make([]domain.Memory, 0, len(matches))
	for _, mem := range matches {
		if recordAccess {
			touch(mem)
		}
		out = append(out, *mem)
	}
	return out
}

func touch(mem *domain.Memory) {
	mem.AccessCount++
	now := time.Now()
	mem.LastAccessed = &now
}

func lastAccessed(mem *domain.Memory) time.Time {
	if mem.LastAccessed == nil {
		return time.Time{}
	}
	return *mem.LastAccessed
}
