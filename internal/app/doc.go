// Package app composes the ledger into a running application.
//
// It sits above the domain packages (accrual, milestone, commission, rates)
// and the services built on them, and owns no business logic itself.
//
//	internal/app/
//	├── application.go  # Application: wiring and lifecycle
//	├── accrual/        # vault yield and early-withdrawal pricing
//	├── milestone/      # node milestone state machine
//	├── commission/     # referral commission propagation
//	├── rates/          # static rate tables
//	├── domain/ledger/  # records persisted by the stores
//	├── storage/        # Store interfaces, memory/ and postgres/
//	├── services/       # ledger, rewards, reconcile, payment
//	├── httpapi/        # REST handlers
//	├── runtime/        # config to running HTTP server
//	├── system/         # lifecycle manager
//	└── metrics/        # Prometheus collectors
//
// Background services (the reconciliation poller and the reward scheduler)
// are registered with the system manager and started in registration order.
package app
