package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/practice-scheduler/internal/application"
	"github.com/example/practice-scheduler/internal/planner"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// Stores bundles the store interfaces the services consume. A SQLiteHarness
// satisfies every field; in-memory doubles can mix and match.
type Stores struct {
	Organizations application.OrganizationStore
	Staff         application.StaffDirectory
	Patients      application.PatientDirectory
	Rooms         application.RoomCatalog
	Rules         application.RuleStore
	TimeOff       application.TimeOffStore
	Schedules     application.ScheduleStore
	Sessions      application.SessionStore
	Holds         application.HoldStore
}

// HarnessStores adapts a SQLiteHarness into the Stores bundle.
func HarnessStores(harness *SQLiteHarness) Stores {
	return Stores{
		Organizations: harness.Organizations,
		Staff:         harness.Staff,
		Patients:      harness.Patients,
		Rooms:         harness.Rooms,
		Rules:         harness.Rules,
		TimeOff:       harness.TimeOff,
		Schedules:     harness.Schedules,
		Sessions:      harness.Sessions,
		Holds:         harness.Holds,
	}
}

// NewAvailabilityService builds an availability service over the stores.
func (f *ServiceFactory) NewAvailabilityService(stores Stores, logger *slog.Logger) *application.AvailabilityService {
	return application.NewAvailabilityService(
		stores.Organizations,
		stores.Staff,
		stores.Rooms,
		stores.Patients,
		stores.TimeOff,
		stores.Sessions,
		stores.Holds,
		logger,
		f.Clock.NowFunc(),
	)
}

// NewHoldService builds a hold service over the stores.
func (f *ServiceFactory) NewHoldService(stores Stores, logger *slog.Logger, ttl time.Duration) *application.HoldService {
	return application.NewHoldService(
		stores.Organizations,
		stores.Staff,
		stores.Rooms,
		stores.Holds,
		logger,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		ttl,
	)
}

// NewBookingService builds a booking service over the stores.
func (f *ServiceFactory) NewBookingService(stores Stores, audit application.AuditSink, logger *slog.Logger) *application.BookingService {
	if audit == nil {
		audit = application.NewLogAuditSink(logger)
	}
	return application.NewBookingService(
		stores.Organizations,
		stores.Staff,
		stores.Patients,
		stores.Rooms,
		stores.Schedules,
		stores.Sessions,
		stores.Holds,
		audit,
		logger,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
	)
}

// NewSessionService builds a session lifecycle service over the stores.
func (f *ServiceFactory) NewSessionService(stores Stores, audit application.AuditSink, logger *slog.Logger) *application.SessionService {
	if audit == nil {
		audit = application.NewLogAuditSink(logger)
	}
	return application.NewSessionService(
		stores.Organizations,
		stores.Sessions,
		audit,
		logger,
		f.Clock.NowFunc(),
	)
}

// NewScheduleService builds a schedule service over the stores. When
// plannerClient is nil an empty StaticPlanner is used.
func (f *ServiceFactory) NewScheduleService(stores Stores, plannerClient planner.Planner, logger *slog.Logger) *application.ScheduleService {
	if plannerClient == nil {
		plannerClient = &planner.StaticPlanner{}
	}
	return application.NewScheduleService(
		stores.Organizations,
		stores.Staff,
		stores.Patients,
		stores.Rooms,
		stores.Rules,
		stores.Schedules,
		stores.Sessions,
		plannerClient,
		logger,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
	)
}
