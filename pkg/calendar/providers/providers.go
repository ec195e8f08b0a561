// Package providers registers the built-in calendar stores.
package providers

import (
	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/caldav"
	"github.com/venkytv/calendar-grid/pkg/calendar/google"
	"github.com/venkytv/calendar-grid/pkg/calendar/ical"
	"github.com/venkytv/calendar-grid/pkg/calendar/local"
)

// InitializeBuiltinStores registers all built-in calendar stores with the factory
func InitializeBuiltinStores(factory *calendar.DefaultStoreFactory) {
	factory.RegisterStore(caldav.StoreType, func() calendar.Store {
		return caldav.NewStore()
	})

	// Public iCal URLs and local .ics files
	factory.RegisterStore(ical.StoreType, func() calendar.Store {
		return ical.NewStore()
	})

	factory.RegisterStore(google.StoreType, func() calendar.Store {
		return google.NewStore()
	})

	factory.RegisterStore(local.StoreType, func() calendar.Store {
		return local.NewStore()
	})
}
