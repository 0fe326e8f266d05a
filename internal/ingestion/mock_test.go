package ingestion

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

// mockDisasterRepo implements repository.DisasterRepository for testing
type mockDisasterRepo struct {
	mu        sync.Mutex
	disasters map[string]*models.DisasterEvent
	addCount  atomic.Int64
	addErr    error
}

var _ repository.DisasterRepository = (*mockDisasterRepo)(nil)

func newMockRepo() *mockDisasterRepo {
	return &mockDisasterRepo{
		disasters: make(map[string]*models.DisasterEvent),
	}
}

func (m *mockDisasterRepo) Add(ctx context.Context, d *models.DisasterEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	cp := *d
	m.disasters[d.ID] = &cp
	m.addCount.Add(1)
	return nil
}

func (m *mockDisasterRepo) GetByID(ctx context.Context, id string) (*models.DisasterEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disasters[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	cp.Readings = append([]models.Reading(nil), d.Readings...)
	return &cp, nil
}

func (m *mockDisasterRepo) ExistsBySourceRef(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disasters {
		if d.SourceRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDisasterRepo) ListDisasters(ctx context.Context, opts repository.DisasterFilter) ([]models.DisasterEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []models.DisasterEvent
	for _, d := range m.disasters {
		results = append(results, *d)
	}
	return results, nil
}

func (m *mockDisasterRepo) Nearby(ctx context.Context, q repository.NearbyQuery) ([]models.DisasterEvent, error) {
	return m.ListDisasters(ctx, repository.DisasterFilter{})
}

func (m *mockDisasterRepo) Update(ctx context.Context, d *models.DisasterEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.disasters[d.ID]; !ok {
		return false, nil
	}
	cp := *d
	m.disasters[d.ID] = &cp
	return true, nil
}

func (m *mockDisasterRepo) AppendReading(ctx context.Context, id string, r models.Reading) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disasters[id]
	if !ok {
		return false, nil
	}
	d.Readings = append(d.Readings, r)
	return true, nil
}

func (m *mockDisasterRepo) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.disasters[id]; !ok {
		return false, nil
	}
	delete(m.disasters, id)
	return true, nil
}

func (m *mockDisasterRepo) MarkAlertsSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.disasters[id]; ok {
		d.AlertsSent = true
	}
	return nil
}

func (m *mockDisasterRepo) ClaimAlertsSent(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disasters[id]
	if !ok || d.AlertsSent {
		return false, nil
	}
	d.AlertsSent = true
	return true, nil
}

type mockScheduler struct {
	mu  sync.Mutex
	ids []string
}

func (m *mockScheduler) Schedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func (m *mockScheduler) scheduled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}
