// Package history keeps a bounded per-category memory of recently generated
// subtopics and key entities so prompts can steer the model away from repeats.
package history

import (
	"math/rand/v2"
	"strings"
	"sync"
)

const (
	DefaultSubcategoryCapacity = 15
	DefaultEntityCapacity      = 25
	DefaultMaxCategories       = 200
)

// Options bounds the store. Zero values fall back to the defaults.
type Options struct {
	SubcategoryCapacity int
	EntityCapacity      int
	MaxCategories       int

	// Shuffle randomizes the order returned by Sample.
	Shuffle bool
}

// CategoryHistory is the rolling memory of one category.
type CategoryHistory struct {
	Subcategories []string `json:"subcategories"`
	Entities      []string `json:"entities"`
}

// Store tracks histories for many categories. Categories are evicted in the
// order they were first added once MaxCategories is exceeded.
type Store struct {
	mu         sync.Mutex
	opts       Options
	categories map[string]*CategoryHistory
	order      []string
}

func NewStore(opts Options) *Store {
	if opts.SubcategoryCapacity <= 0 {
		opts.SubcategoryCapacity = DefaultSubcategoryCapacity
	}
	if opts.EntityCapacity <= 0 {
		opts.EntityCapacity = DefaultEntityCapacity
	}
	if opts.MaxCategories <= 0 {
		opts.MaxCategories = DefaultMaxCategories
	}
	return &Store{
		opts:       opts,
		categories: make(map[string]*CategoryHistory),
	}
}

// Record appends a subcategory and entities to the category's history.
// Values already present are not duplicated.
func (s *Store) Record(category, subcategory string, entities []string) {
	category = strings.TrimSpace(category)
	if category == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.categories[category]
	if !ok {
		h = &CategoryHistory{}
		s.categories[category] = h
		s.order = append(s.order, category)
		s.evictLocked()
	}

	if sub := strings.TrimSpace(subcategory); sub != "" {
		h.Subcategories = pushBounded(h.Subcategories, sub, s.opts.SubcategoryCapacity)
	}
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			h.Entities = pushBounded(h.Entities, e, s.opts.EntityCapacity)
		}
	}
}

// Sample returns copies of the category's history. Unknown categories yield
// empty slices.
func (s *Store) Sample(category string) CategoryHistory {
	s.mu.Lock()
	h, ok := s.categories[strings.TrimSpace(category)]
	var out CategoryHistory
	if ok {
		out.Subcategories = append([]string{}, h.Subcategories...)
		out.Entities = append([]string{}, h.Entities...)
	}
	s.mu.Unlock()

	if out.Subcategories == nil {
		out.Subcategories = []string{}
	}
	if out.Entities == nil {
		out.Entities = []string{}
	}
	if s.opts.Shuffle {
		rand.Shuffle(len(out.Subcategories), func(i, j int) {
			out.Subcategories[i], out.Subcategories[j] = out.Subcategories[j], out.Subcategories[i]
		})
		rand.Shuffle(len(out.Entities), func(i, j int) {
			out.Entities[i], out.Entities[j] = out.Entities[j], out.Entities[i]
		})
	}
	return out
}

// Len reports how many categories are tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories)
}

func (s *Store) evictLocked() {
	for len(s.order) > s.opts.MaxCategories {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.categories, oldest)
	}
}

func pushBounded(items []string, v string, capacity int) []string {
	for _, existing := range items {
		if existing == v {
			return items
		}
	}
	items = append(items, v)
	if over := len(items) - capacity; over > 0 {
		items = append([]string{}, items[over:]...)
	}
	return items
}
