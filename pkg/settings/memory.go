package settings

import (
	"context"
	"sort"
	"sync"

	"github.com/venkytv/calendar-grid/internal/models"
)

// MemoryStore keeps settings in process memory
type MemoryStore struct {
	mu             sync.RWMutex
	values         map[string]string
	customizations map[string]models.Customization
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:         make(map[string]string),
		customizations: make(map[string]models.Customization),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrSettingUnavailable
	}
	return v, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Customization(ctx context.Context, id string) (models.Customization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customizations[id]
	if !ok {
		return models.Customization{}, ErrSettingUnavailable
	}
	return copyCustomization(c), nil
}

func (m *MemoryStore) SetCustomization(ctx context.Context, c models.Customization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customizations[c.ID] = copyCustomization(c)
	return nil
}

func (m *MemoryStore) DeleteCustomization(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.customizations, id)
	return nil
}

func (m *MemoryStore) Customizations(ctx context.Context) ([]models.Customization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Customization, 0, len(m.customizations))
	for _, c := range m.customizations {
		out = append(out, copyCustomization(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// copyCustomization detaches the optional fields so callers cannot mutate
// stored records through shared pointers
func copyCustomization(c models.Customization) models.Customization {
	if c.Nickname != nil {
		v := *c.Nickname
		c.Nickname = &v
	}
	if c.ColorHex != nil {
		v := *c.ColorHex
		c.ColorHex = &v
	}
	return c
}
