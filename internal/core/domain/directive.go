package domain

import "fmt"

// ControlDirective is one limit authority's opinion at a point in time.
// Absent fields mean the authority has no opinion on them.
type ControlDirective struct {
	Source               string   `json:"source"`
	Connect              *bool    `json:"opModConnect,omitempty"`
	Energize             *bool    `json:"opModEnergize,omitempty"`
	ExportLimitWatts     *float64 `json:"opModExpLimW,omitempty"`
	GenerationLimitWatts *float64 `json:"opModGenLimW,omitempty"`
}

func (d ControlDirective) IsEmpty() bool {
	return d.Connect == nil && d.Energize == nil && d.ExportLimitWatts == nil && d.GenerationLimitWatts == nil
}

func (d ControlDirective) String() string {
	return fmt.Sprintf("%s{connect=%s energize=%s exportLimitW=%s generationLimitW=%s}",
		d.Source, fmtBool(d.Connect), fmtBool(d.Energize), fmtFloat(d.ExportLimitWatts), fmtFloat(d.GenerationLimitWatts))
}

// Winner is a reconciled field value plus the source that supplied it.
type Winner[T any] struct {
	Value  T      `json:"value"`
	Source string `json:"source"`
}

type ReconciledLimit struct {
	Connect              *Winner[bool]    `json:"connect,omitempty"`
	Energize             *Winner[bool]    `json:"energize,omitempty"`
	ExportLimitWatts     *Winner[float64] `json:"exportLimitWatts,omitempty"`
	GenerationLimitWatts *Winner[float64] `json:"generationLimitWatts,omitempty"`
}

func Bool(v bool) *bool {
	return &v
}

func Float(v float64) *float64 {
	return &v
}

func fmtBool(v *bool) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%t", *v)
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
