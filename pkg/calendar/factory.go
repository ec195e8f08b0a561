package calendar

import (
	"fmt"
	"sort"
)

// DefaultStoreFactory is the default implementation of StoreFactory
type DefaultStoreFactory struct {
	stores map[string]func() Store
}

// NewDefaultStoreFactory creates a new default store factory
func NewDefaultStoreFactory() *DefaultStoreFactory {
	return &DefaultStoreFactory{
		stores: make(map[string]func() Store),
	}
}

// RegisterStore registers a store constructor function
func (f *DefaultStoreFactory) RegisterStore(storeType string, constructor func() Store) {
	f.stores[storeType] = constructor
}

// CreateStore creates a new store instance based on the type
func (f *DefaultStoreFactory) CreateStore(storeType string) (Store, error) {
	constructor, exists := f.stores[storeType]
	if !exists {
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
	return constructor(), nil
}

// SupportedTypes returns a sorted list of supported store types
func (f *DefaultStoreFactory) SupportedTypes() []string {
	types := make([]string, 0, len(f.stores))
	for storeType := range f.stores {
		types = append(types, storeType)
	}
	sort.Strings(types)
	return types
}
