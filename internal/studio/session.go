package studio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

// Backend is the subset of catalog.Service a session needs.
type Backend interface {
	ListFamilies(ctx context.Context, page, perPage int) (*catalog.FamilyPage, error)
	UpdateFamily(ctx context.Context, id string, patch map[string]any) (*catalog.Family, error)
}

// Session is one user's studio state: the loaded page of families, the
// selection, and pending drafts. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	items []catalog.Family
	index map[string]int

	page       int
	perPage    int
	totalPages int
	totalItems int
	search     string
	filter     catalog.Filter

	selectionMode bool
	selected      map[string]struct{}
	drafts        map[string]*Draft
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{
		index:    make(map[string]int),
		selected: make(map[string]struct{}),
		drafts:   make(map[string]*Draft),
		filter:   catalog.FilterAll,
		page:     1,
	}
}

// Load fetches a page of families and replaces the session's items.
// Selections and drafts for families no longer loaded are dropped.
func (s *Session) Load(ctx context.Context, b Backend, page, perPage int) error {
	res, err := b.ListFamilies(ctx, page, perPage)
	if err != nil {
		return fmt.Errorf("loading families: %w", err)
	}
	s.Replace(res.Items)

	s.mu.Lock()
	s.page, s.perPage = res.Page, res.PerPage
	s.totalPages, s.totalItems = res.TotalPages, res.TotalItems
	s.mu.Unlock()
	return nil
}

// Replace sets the loaded families directly.
func (s *Session) Replace(items []catalog.Family) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append([]catalog.Family(nil), items...)
	s.index = make(map[string]int, len(items))
	for i, f := range s.items {
		s.index[f.ID] = i
	}
	s.totalItems = len(items)
	s.totalPages = 1
	for id := range s.selected {
		if _, ok := s.index[id]; !ok {
			delete(s.selected, id)
		}
	}
	for id := range s.drafts {
		if _, ok := s.index[id]; !ok {
			delete(s.drafts, id)
		}
	}
}

// SetQuery changes the search term and filter used by Visible and SelectAll.
func (s *Session) SetQuery(search string, filter catalog.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = search
	if filter == "" {
		filter = catalog.FilterAll
	}
	s.filter = filter
}

// Items returns a copy of every loaded family.
func (s *Session) Items() []catalog.Family {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.Family(nil), s.items...)
}

// Item returns the loaded family with the given id.
func (s *Session) Item(id string) (catalog.Family, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return catalog.Family{}, false
	}
	return s.items[i], true
}

// Visible returns the loaded families matching the current query.
func (s *Session) Visible() []catalog.Family {
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.FilterFamilies(s.items, s.search, s.filter)
}

// SetSelectionMode enters or leaves selection mode. Leaving clears the
// selection.
func (s *Session) SetSelectionMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectionMode = on
	if !on {
		s.selected = make(map[string]struct{})
	}
}

// SelectionMode reports whether selection mode is active.
func (s *Session) SelectionMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionMode
}

// Toggle flips the selection of id and returns the new state. Selecting
// enters selection mode.
func (s *Session) Toggle(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return false, ErrUnknownFamily
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return false, nil
	}
	s.selected[id] = struct{}{}
	s.selectionMode = true
	return true, nil
}

// Select marks the given ids as selected, ignoring ids that are not loaded.
// It returns how many were added.
func (s *Session) Select(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.index[id]; !ok {
			continue
		}
		if _, ok := s.selected[id]; !ok {
			s.selected[id] = struct{}{}
			n++
		}
	}
	if len(s.selected) > 0 {
		s.selectionMode = true
	}
	return n
}

// SelectAll selects every visible family. When all of them are already
// selected it clears the selection instead. It returns the selection size.
func (s *Session) SelectAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := catalog.FilterFamilies(s.items, s.search, s.filter)
	all := len(visible) > 0
	for _, f := range visible {
		if _, ok := s.selected[f.ID]; !ok {
			all = false
			break
		}
	}
	if all {
		for _, f := range visible {
			delete(s.selected, f.ID)
		}
		return len(s.selected)
	}
	for _, f := range visible {
		s.selected[f.ID] = struct{}{}
	}
	s.selectionMode = true
	return len(s.selected)
}

// ClearSelection empties the selection and leaves selection mode.
func (s *Session) ClearSelection() {
	s.SetSelectionMode(false)
}

// Selected returns the selected ids in item order.
func (s *Session) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

func (s *Session) selectedLocked() []string {
	ids := make([]string, 0, len(s.selected))
	for _, f := range s.items {
		if _, ok := s.selected[f.ID]; ok {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// ApplyBulk sends one PATCH per selected family, all at once. Each
// response is merged into the session independently. Failures are counted
// and nothing is rolled back. The selection is cleared afterwards.
func (s *Session) ApplyBulk(ctx context.Context, b Backend, req BulkRequest, reporter progress.Reporter) (*BulkResult, error) {
	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}
	ids := s.Selected()
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}

	total := len(ids)
	result := &BulkResult{Total: total}
	var (
		mu        sync.Mutex
		processed int64
		wg        sync.WaitGroup
	)

	reporter.Start(total)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			updated, err := b.UpdateFamily(ctx, id, payload)
			mu.Lock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, ItemError{ID: id, Error: err.Error()})
			} else {
				result.Updated++
			}
			mu.Unlock()
			if err == nil {
				s.merge(*updated)
			}

			count := atomic.AddInt64(&processed, 1)
			reporter.Update(int(count), id)
		}(id)
	}
	wg.Wait()
	reporter.Finish()

	s.ClearSelection()
	result.Message = bulkMessage(result)
	return result, nil
}

func bulkMessage(r *BulkResult) string {
	if r.Failed > 0 {
		return fmt.Sprintf("Failed to update %d items", r.Failed)
	}
	return fmt.Sprintf("Updated %d items", r.Updated)
}

// merge replaces the stored copy of f, keeping expanded categories that are
// still referenced when the response carries no expansion.
func (s *Session) merge(f catalog.Family) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[f.ID]
	if !ok {
		return
	}
	old := s.items[i]
	if f.Expand == nil && old.Expand != nil {
		keep := make(map[string]bool, len(f.Category))
		for _, id := range f.Category {
			keep[id] = true
		}
		exp := &catalog.FamilyExpand{Vendor: old.Expand.Vendor}
		for _, c := range old.Expand.Category {
			if keep[c.ID] {
				exp.Category = append(exp.Category, c)
			}
		}
		f.Expand = exp
	}
	s.items[i] = f
}

// StartDraft begins (or returns the existing) draft for id.
func (s *Session) StartDraft(id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drafts[id]; ok {
		return *d, nil
	}
	i, ok := s.index[id]
	if !ok {
		return Draft{}, ErrUnknownFamily
	}
	d := DraftFrom(s.items[i])
	s.drafts[id] = &d
	return d, nil
}

// SetDraft replaces the draft for id.
func (s *Session) SetDraft(id string, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return ErrUnknownFamily
	}
	s.drafts[id] = &d
	return nil
}

// Draft returns the pending draft for id.
func (s *Session) Draft(id string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, false
	}
	return *d, true
}

// Drafts returns a copy of every pending draft keyed by family id.
func (s *Session) Drafts() map[string]Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Draft, len(s.drafts))
	for id, d := range s.drafts {
		out[id] = *d
	}
	return out
}

// DiscardDraft drops the draft for id.
func (s *Session) DiscardDraft(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
}

// SaveDraft sends the draft for id and merges the response. The draft is
// kept when the request fails.
func (s *Session) SaveDraft(ctx context.Context, b Backend, id string) (*catalog.Family, map[string]any, error) {
	s.mu.Lock()
	d, ok := s.drafts[id]
	i, loaded := s.index[id]
	var item *catalog.Family
	if loaded {
		cp := s.items[i]
		item = &cp
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil, ErrNoDraft
	}

	payload := SavePayload(*d, item)
	updated, err := b.UpdateFamily(ctx, id, payload)
	if err != nil {
		return nil, payload, fmt.Errorf("saving family %s: %w", id, err)
	}
	s.merge(*updated)
	s.DiscardDraft(id)
	return updated, payload, nil
}

// State is a snapshot of a session for the API.
type State struct {
	Items         []catalog.Family `json:"items"`
	Selected      []string         `json:"selected"`
	SelectionMode bool             `json:"selectionMode"`
	Drafts        map[string]Draft `json:"drafts"`
	Page          int              `json:"page"`
	PerPage       int              `json:"perPage"`
	TotalPages    int              `json:"totalPages"`
	TotalItems    int              `json:"totalItems"`
	Search        string           `json:"search"`
	Filter        catalog.Filter   `json:"filter"`
}

// Snapshot returns the visible items and selection state.
func (s *Session) Snapshot() State {
	drafts := s.Drafts()
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Items:         catalog.FilterFamilies(s.items, s.search, s.filter),
		Selected:      s.selectedLocked(),
		SelectionMode: s.selectionMode,
		Drafts:        drafts,
		Page:          s.page,
		PerPage:       s.perPage,
		TotalPages:    s.totalPages,
		TotalItems:    s.totalItems,
		Search:        s.search,
		Filter:        s.filter,
	}
}

// Manager keeps one Session per key, typically the caller's auth token.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for key, creating it on first use.
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = NewSession()
		m.sessions[key] = s
	}
	return s
}

// Drop forgets the session for key.
func (m *Manager) Drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
