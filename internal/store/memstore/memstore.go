// Package memstore is an in-memory implementation of store.Store for
// hermetic unit tests, per the dependency-injected-DAO design guidance:
// the core depends only on the store interfaces, and this backend swaps
// in for postgres without any caller-visible behavior changing.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/pkg/models"
)

// Store is a mutex-guarded in-memory backend implementing store.Store.
type Store struct {
	mu sync.RWMutex

	nextSeriesID int64
	series       map[int64]models.SecretSeries
	seriesByName map[string]int64

	nextContentID   int64
	content         map[int64]models.SecretContent
	contentBySeries map[int64][]int64 // ordered by id ascending

	nextClientID int64
	clients      map[int64]models.Client
	clientByName map[string]int64

	nextGroupID int64
	groups      map[int64]models.Group
	groupByName map[string]int64

	clientInGroup map[int64]map[int64]bool // clientID -> groupID set
	seriesInGroup map[int64]map[int64]bool // groupID -> seriesID set
}

// lockHeldKey marks a context as running inside WithinTx, where the store's
// mutex is already held for the whole call sequence — the SeriesStore/
// ContentStore methods below that check lockHeld do not lock again.
type lockHeldKey struct{}

func withLockHeld(ctx context.Context) context.Context {
	return context.WithValue(ctx, lockHeldKey{}, true)
}

func lockHeld(ctx context.Context) bool {
	held, _ := ctx.Value(lockHeldKey{}).(bool)
	return held
}

// WithinTx holds the store's mutex for fn's entire duration, so a
// create-or-lookup-then-insert sequence, or a series+content join read,
// observes a consistent snapshot instead of interleaving with another
// caller's mutation between two separate lock/unlock windows.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(withLockHeld(ctx))
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		series:          make(map[int64]models.SecretSeries),
		seriesByName:    make(map[string]int64),
		content:         make(map[int64]models.SecretContent),
		contentBySeries: make(map[int64][]int64),
		clients:         make(map[int64]models.Client),
		clientByName:    make(map[string]int64),
		groups:          make(map[int64]models.Group),
		groupByName:     make(map[string]int64),
		clientInGroup:   make(map[int64]map[int64]bool),
		seriesInGroup:   make(map[int64]map[int64]bool),
	}
}

// --- SeriesStore ---

func (s *Store) CreateSeries(ctx context.Context, name, description, creator, secretType string, generationOptions, metadata map[string]string) (int64, error) {
	if !lockHeld(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	if _, exists := s.seriesByName[name]; exists {
		return 0, apperr.New(apperr.Conflict, fmt.Sprintf("series %q already exists", name))
	}

	s.nextSeriesID++
	id := s.nextSeriesID
	now := time.Now().UTC()
	s.series[id] = models.SecretSeries{
		ID:                id,
		Name:              name,
		Description:       description,
		CreatedAt:         now,
		CreatedBy:         creator,
		UpdatedAt:         now,
		UpdatedBy:         creator,
		Type:              secretType,
		GenerationOptions: copyMap(generationOptions),
		Metadata:          copyMap(metadata),
	}
	s.seriesByName[name] = id
	return id, nil
}

func (s *Store) GetSeriesByID(ctx context.Context, id int64) (*models.SecretSeries, error) {
	if !lockHeld(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	series, ok := s.series[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("series id %d not found", id))
	}
	return &series, nil
}

func (s *Store) GetSeriesByName(ctx context.Context, name string) (*models.SecretSeries, error) {
	if !lockHeld(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	id, ok := s.seriesByName[name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("series %q not found", name))
	}
	series := s.series[id]
	return &series, nil
}

func (s *Store) ListAll(ctx context.Context) ([]models.SecretSeries, error) {
	if !lockHeld(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	out := make([]models.SecretSeries, 0, len(s.series))
	for _, series := range s.series {
		out = append(out, series)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteByName(ctx context.Context, name string) error {
	if !lockHeld(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	id, ok := s.seriesByName[name]
	if !ok {
		return nil // idempotent
	}
	delete(s.seriesByName, name)
	delete(s.series, id)
	for _, cid := range s.contentBySeries[id] {
		delete(s.content, cid)
	}
	delete(s.contentBySeries, id)
	s.removeSeriesGrantsLocked(id)
	return nil
}

// --- ContentStore ---

func (s *Store) Create(ctx context.Context, seriesID int64, encryptedContent, version, creator string) (int64, error) {
	if !lockHeld(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	for _, cid := range s.contentBySeries[seriesID] {
		if s.content[cid].Version == version {
			return 0, apperr.New(apperr.Conflict, fmt.Sprintf("version %q already exists for series %d", version, seriesID))
		}
	}

	s.nextContentID++
	id := s.nextContentID
	now := time.Now().UTC()
	s.content[id] = models.SecretContent{
		ID:               id,
		SecretSeriesID:   seriesID,
		EncryptedContent: encryptedContent,
		Version:          version,
		CreatedAt:        now,
		CreatedBy:        creator,
		UpdatedAt:        now,
		UpdatedBy:        creator,
	}
	s.contentBySeries[seriesID] = append(s.contentBySeries[seriesID], id)
	return id, nil
}

func (s *Store) GetContentByID(ctx context.Context, id int64) (*models.SecretContent, error) {
	if !lockHeld(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	c, ok := s.content[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("content id %d not found", id))
	}
	return &c, nil
}

func (s *Store) ListBySeries(ctx context.Context, seriesID int64) ([]models.SecretContent, error) {
	if !lockHeld(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	ids := s.contentBySeries[seriesID]
	out := make([]models.SecretContent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.content[id])
	}
	return out, nil
}

func (s *Store) VersionsOf(ctx context.Context, seriesID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, id := range s.contentBySeries[seriesID] {
		v := s.content[id].Version
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) DeleteBySeries(ctx context.Context, seriesID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.contentBySeries[seriesID] {
		delete(s.content, id)
	}
	delete(s.contentBySeries, seriesID)
	return nil
}

func (s *Store) DeleteBySeriesAndVersion(ctx context.Context, seriesID int64, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.contentBySeries[seriesID]
	kept := ids[:0]
	for _, id := range ids {
		if s.content[id].Version == version {
			delete(s.content, id)
			continue
		}
		kept = append(kept, id)
	}
	s.contentBySeries[seriesID] = kept
	return nil
}

// --- ClientStore ---

func (s *Store) CreateClient(ctx context.Context, name, description, creator string, automation bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clientByName[name]; exists {
		return 0, apperr.New(apperr.Conflict, fmt.Sprintf("client %q already exists", name))
	}
	s.nextClientID++
	id := s.nextClientID
	now := time.Now().UTC()
	s.clients[id] = models.Client{
		ID: id, Name: name, Description: description,
		CreatedAt: now, CreatedBy: creator, UpdatedAt: now, UpdatedBy: creator,
		Automation: automation,
	}
	s.clientByName[name] = id
	return id, nil
}

func (s *Store) GetClientByID(ctx context.Context, id int64) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("client id %d not found", id))
	}
	return &c, nil
}

func (s *Store) GetClientByName(ctx context.Context, name string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.clientByName[name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("client %q not found", name))
	}
	c := s.clients[id]
	return &c, nil
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil
	}
	delete(s.clients, id)
	delete(s.clientByName, c.Name)
	s.removeClientMembershipsLocked(id)
	return nil
}

// --- GroupStore ---

func (s *Store) CreateGroup(ctx context.Context, name, description, creator string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groupByName[name]; exists {
		return 0, apperr.New(apperr.Conflict, fmt.Sprintf("group %q already exists", name))
	}
	s.nextGroupID++
	id := s.nextGroupID
	now := time.Now().UTC()
	s.groups[id] = models.Group{
		ID: id, Name: name, Description: description,
		CreatedAt: now, CreatedBy: creator, UpdatedAt: now, UpdatedBy: creator,
	}
	s.groupByName[name] = id
	return id, nil
}

func (s *Store) GetGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("group id %d not found", id))
	}
	return &g, nil
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.groupByName[name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("group %q not found", name))
	}
	g := s.groups[id]
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil
	}
	delete(s.groups, id)
	delete(s.groupByName, g.Name)
	s.removeGroupEdgesLocked(id)
	return nil
}

// --- MembershipStore ---

func (s *Store) Enroll(ctx context.Context, clientID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientInGroup[clientID] == nil {
		s.clientInGroup[clientID] = make(map[int64]bool)
	}
	s.clientInGroup[clientID][groupID] = true
	return nil
}

func (s *Store) Evict(ctx context.Context, clientID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clientInGroup[clientID], groupID)
	return nil
}

func (s *Store) Allow(ctx context.Context, seriesID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seriesInGroup[groupID] == nil {
		s.seriesInGroup[groupID] = make(map[int64]bool)
	}
	s.seriesInGroup[groupID][seriesID] = true
	return nil
}

func (s *Store) Disallow(ctx context.Context, seriesID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seriesInGroup[groupID], seriesID)
	return nil
}

func (s *Store) ClientsOf(ctx context.Context, groupID int64) ([]models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Client
	for clientID, groups := range s.clientInGroup {
		if groups[groupID] {
			if c, ok := s.clients[clientID]; ok {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GroupsOfClient(ctx context.Context, clientID int64) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Group
	for groupID := range s.clientInGroup[clientID] {
		if g, ok := s.groups[groupID]; ok {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SeriesOf(ctx context.Context, groupID int64) ([]models.SecretSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SecretSeries
	for seriesID := range s.seriesInGroup[groupID] {
		if series, ok := s.series[seriesID]; ok {
			out = append(out, series)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GroupsOfSeries(ctx context.Context, seriesID int64) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Group
	for groupID, series := range s.seriesInGroup {
		if series[seriesID] {
			if g, ok := s.groups[groupID]; ok {
				out = append(out, g)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RemoveClient evicts clientID from every group it belongs to. DeleteClient
// calls the same locked helper as part of dropping the client row, so this
// is the one place that edge cascade is implemented.
func (s *Store) RemoveClient(ctx context.Context, clientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeClientMembershipsLocked(clientID)
	return nil
}

// RemoveGroup clears groupID's client and series edges. DeleteGroup calls
// the same locked helper as part of dropping the group row.
func (s *Store) RemoveGroup(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeGroupEdgesLocked(groupID)
	return nil
}

// RemoveSeries clears every group's grant on seriesID. DeleteByName calls
// the same locked helper as part of dropping the series row.
func (s *Store) RemoveSeries(ctx context.Context, seriesID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSeriesGrantsLocked(seriesID)
	return nil
}

func (s *Store) removeClientMembershipsLocked(clientID int64) {
	delete(s.clientInGroup, clientID)
}

func (s *Store) removeGroupEdgesLocked(groupID int64) {
	delete(s.seriesInGroup, groupID)
	for client := range s.clientInGroup {
		delete(s.clientInGroup[client], groupID)
	}
}

func (s *Store) removeSeriesGrantsLocked(seriesID int64) {
	for group := range s.seriesInGroup {
		delete(s.seriesInGroup[group], seriesID)
	}
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
