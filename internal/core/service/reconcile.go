package service

import (
	"fmt"
	"math"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"
)

type DefaultLimitReconciler struct{}

// Reconcile merges directives field by field. Numeric limits take the
// minimum and boolean flags take false over true. Ties keep the source
// that appears first in the list.
func (DefaultLimitReconciler) Reconcile(directives []domain.ControlDirective) (domain.ReconciledLimit, error) {
	return Reconcile(directives)
}

func Reconcile(directives []domain.ControlDirective) (domain.ReconciledLimit, error) {
	var result domain.ReconciledLimit
	if len(directives) == 0 {
		return result, fmt.Errorf("reconcile: empty directive list: %w", domain.ErrInvalidInput)
	}
	for _, d := range directives {
		if invalidNumber(d.ExportLimitWatts) || invalidNumber(d.GenerationLimitWatts) {
			return domain.ReconciledLimit{}, fmt.Errorf("reconcile: non finite limit from %s: %w", d.Source, domain.ErrInvalidInput)
		}
		result.Connect = denyWins(result.Connect, d.Connect, d.Source)
		result.Energize = denyWins(result.Energize, d.Energize, d.Source)
		result.ExportLimitWatts = minWins(result.ExportLimitWatts, d.ExportLimitWatts, d.Source)
		result.GenerationLimitWatts = minWins(result.GenerationLimitWatts, d.GenerationLimitWatts, d.Source)
	}
	return result, nil
}

func minWins(current *domain.Winner[float64], value *float64, source string) *domain.Winner[float64] {
	if value == nil {
		return current
	}
	if current == nil || *value < current.Value {
		return &domain.Winner[float64]{Value: *value, Source: source}
	}
	return current
}

func denyWins(current *domain.Winner[bool], value *bool, source string) *domain.Winner[bool] {
	if value == nil {
		return current
	}
	if current == nil || (current.Value && !*value) {
		return &domain.Winner[bool]{Value: *value, Source: source}
	}
	return current
}

func invalidNumber(v *float64) bool {
	return v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0))
}

// ensure interface compliance
var _ port.LimitReconciler = DefaultLimitReconciler{}
