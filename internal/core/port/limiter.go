package port

import "github.com/berfenger/exportguard/internal/core/domain"

// LimitSource is one limit authority. CurrentDirective must not block:
// it returns the latest cached snapshot and never triggers I/O.
type LimitSource interface {
	Name() string
	CurrentDirective() domain.ControlDirective
}

// LimitReconciler merges directives into one authoritative limit.
type LimitReconciler interface {
	Reconcile(directives []domain.ControlDirective) (domain.ReconciledLimit, error)
}

// LimitRegistry is the ordered set of enabled sources.
type LimitRegistry interface {
	Sources() []LimitSource
	Directives() []domain.ControlDirective
}
