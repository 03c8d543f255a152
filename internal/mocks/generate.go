// Package mocks provides mock implementations for testing the job tracker.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces
// declared in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	reporter := mocks.NewMockStatusReporter(ctrl)
//	reporter.EXPECT().Report(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
package mocks

// Generate mock for LedgerRepository interface from internal/core package.
// This creates MockLedgerRepository with methods: Read, Write
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ledger_repository_mock.go github.com/target/jobtracker/internal/core LedgerRepository

// Generate mock for EventSource interface from internal/core package.
// This creates MockEventSource with methods: FetchAll
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_source_mock.go github.com/target/jobtracker/internal/core EventSource

// Generate mock for StatusReporter interface from internal/core package.
// This creates MockStatusReporter with methods: Report
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=status_reporter_mock.go github.com/target/jobtracker/internal/core StatusReporter

// Generate mock for AlertNotifier interface from internal/core package.
// This creates MockAlertNotifier with methods: NotifyJobState
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=alert_notifier_mock.go github.com/target/jobtracker/internal/core AlertNotifier

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods: SetIfNotExists, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/jobtracker/internal/core CacheRepository
