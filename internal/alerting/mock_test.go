package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

// memStore implements DisasterStore, ConfigStore and PendingLister over maps.
type memStore struct {
	mu        sync.Mutex
	disasters map[string]*models.DisasterEvent
	configs   []*models.AlertConfig
	ops       []string

	getErr  error
	findErr error
	markErr error
	listErr error
	cfgErr  map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		disasters: make(map[string]*models.DisasterEvent),
		cfgErr:    make(map[string]error),
	}
}

func (m *memStore) addDisaster(d models.DisasterEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disasters[d.ID] = &d
}

func (m *memStore) addConfig(c models.AlertConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = append(m.configs, &c)
}

func (m *memStore) disaster(id string) models.DisasterEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.disasters[id]
}

func (m *memStore) config(id string) models.AlertConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.ID == id {
			return *c
		}
	}
	return models.AlertConfig{}
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.DisasterEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.disasters[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) MarkAlertsSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "mark:"+id)
	if m.markErr != nil {
		return m.markErr
	}
	if d, ok := m.disasters[id]; ok {
		d.AlertsSent = true
	}
	return nil
}

func (m *memStore) ClaimAlertsSent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "claim:"+id)
	if m.markErr != nil {
		return false, m.markErr
	}
	d, ok := m.disasters[id]
	if !ok || d.AlertsSent {
		return false, nil
	}
	d.AlertsSent = true
	return true, nil
}

func (m *memStore) FindMatching(_ context.Context, t models.DisasterType, severity int) ([]models.AlertConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.AlertConfig
	for _, c := range m.configs {
		if c.IsActive && c.Applies(t) && c.SeverityThreshold <= severity {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) SetLastTriggered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "set:"+id)
	if err := m.cfgErr[id]; err != nil {
		return err
	}
	for _, c := range m.configs {
		if c.ID == id && (c.LastTriggered == nil || c.LastTriggered.Before(at)) {
			t := at
			c.LastTriggered = &t
		}
	}
	return nil
}

func (m *memStore) ClaimCooldown(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "claim-cooldown:"+id)
	if err := m.cfgErr[id]; err != nil {
		return false, err
	}
	for _, c := range m.configs {
		if c.ID != id {
			continue
		}
		if c.LastTriggered != nil && at.Sub(*c.LastTriggered) < c.Cooldown() {
			return false, nil
		}
		t := at
		c.LastTriggered = &t
		return true, nil
	}
	return false, nil
}

func (m *memStore) ReleaseCooldown(_ context.Context, id string, claimed time.Time, previous *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "release:"+id)
	for _, c := range m.configs {
		if c.ID == id && c.LastTriggered != nil && c.LastTriggered.Equal(claimed) {
			c.LastTriggered = previous
			return true, nil
		}
	}
	return false, nil
}

// ListDisasters only honours the AlertsSent filter. Results are newest ID first.
func (m *memStore) ListDisasters(_ context.Context, opts repository.DisasterFilter) ([]models.DisasterEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.DisasterEvent
	for _, d := range m.disasters {
		if opts.AlertsSent == nil || d.AlertsSent == *opts.AlertsSent {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) opsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

type dispatchCall struct {
	DisasterID string
	ConfigID   string
	At         time.Time
}

type mockDispatcher struct {
	mu    sync.Mutex
	store *memStore
	calls []dispatchCall
	errs  map[string]error
}

func (m *mockDispatcher) Dispatch(_ context.Context, d *models.DisasterEvent, cfg *models.AlertConfig) (models.AlertPayload, error) {
	if m.store != nil {
		m.store.mu.Lock()
		m.store.ops = append(m.store.ops, "dispatch:"+cfg.ID)
		m.store.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[cfg.ID]; err != nil {
		return models.AlertPayload{}, err
	}
	at := time.Time{}
	if cfg.LastTriggered != nil {
		at = *cfg.LastTriggered
	}
	m.calls = append(m.calls, dispatchCall{DisasterID: d.ID, ConfigID: cfg.ID, At: at})
	return models.AlertPayload{DisasterID: d.ID, AlertConfigID: cfg.ID, Timestamp: at}, nil
}

func (m *mockDispatcher) callsFor(configID string) []dispatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dispatchCall
	for _, c := range m.calls {
		if c.ConfigID == configID {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
