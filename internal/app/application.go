// Package app wires stores, services and background workers into one
// lifecycle-managed application.
package app

import (
	"context"
	"fmt"

	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/domain/request"
	adminsvc "github.com/nutrilink/platform/internal/app/services/admin"
	deliveriessvc "github.com/nutrilink/platform/internal/app/services/deliveries"
	listingssvc "github.com/nutrilink/platform/internal/app/services/listings"
	requestssvc "github.com/nutrilink/platform/internal/app/services/requests"
	userssvc "github.com/nutrilink/platform/internal/app/services/users"
	"github.com/nutrilink/platform/internal/app/storage"
	"github.com/nutrilink/platform/internal/app/storage/memory"
	"github.com/nutrilink/platform/internal/app/system"
	"github.com/nutrilink/platform/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users      storage.UserStore
	Listings   storage.ListingStore
	Requests   storage.RequestStore
	Deliveries storage.DeliveryStore
	Analytics  storage.AnalyticsStore
}

// Options carries policy knobs that cross service boundaries.
type Options struct {
	AdminAccessCode      string
	InitialRequestStatus request.Status
	ExpirySchedule       string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users      *userssvc.Service
	Listings   *listingssvc.Service
	Requests   *requestssvc.Service
	Deliveries *deliveriessvc.Service
	Admin      *adminsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, tokens *auth.Manager, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}
	if stores.Deliveries == nil {
		stores.Deliveries = mem
	}
	if stores.Analytics == nil {
		stores.Analytics = mem
	}

	manager := system.NewManager()

	usersService := userssvc.New(stores.Users, tokens, opts.AdminAccessCode, log)
	listingsService := listingssvc.New(stores.Listings, log)
	requestsService := requestssvc.New(stores.Requests, stores.Listings, opts.InitialRequestStatus, log)
	deliveriesService := deliveriessvc.New(stores.Deliveries, stores.Requests, stores.Listings, stores.Users, log)
	adminService := adminsvc.New(stores.Analytics, log)

	sweeper := listingssvc.NewSweeper(stores.Listings, opts.ExpirySchedule, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:    manager,
		log:        log,
		Users:      usersService,
		Listings:   listingsService,
		Requests:   requestsService,
		Deliveries: deliveriesService,
		Admin:      adminService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
