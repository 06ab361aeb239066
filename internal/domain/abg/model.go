// Package abg implements the arterial blood gas intake, classification and
// results log workflow.
package abg

import (
	"strconv"

	"github.com/respirasense/abg/internal/platform/classifier"
)

type Status string

const (
	StatusNormal   Status = "Normal"
	StatusAbnormal Status = "Abnormal"
)

// StatusFromLabel maps a classifier label to a status. Label 0 is Normal;
// any other value is Abnormal.
func StatusFromLabel(l classifier.Label) Status {
	if l == 0 {
		return StatusNormal
	}
	return StatusAbnormal
}

// Sample is one set of ABG readings for a named patient.
type Sample struct {
	PatientName string  `json:"patient_name"`
	PH          float64 `json:"ph"`
	PCO2        float64 `json:"pco2"`
	PO2         float64 `json:"po2"`
	HCO3        float64 `json:"hco3"`
	SaO2        float64 `json:"sao2"`
}

// DefaultSample returns the readings the intake form starts with.
func DefaultSample() Sample {
	return Sample{
		PH:   7.40,
		PCO2: 40.0,
		PO2:  90.0,
		HCO3: 24.0,
		SaO2: 98.0,
	}
}

// Vector returns the readings in classifier feature order.
func (s Sample) Vector() classifier.Vector {
	return classifier.Vector{s.PH, s.PCO2, s.PO2, s.HCO3, s.SaO2}
}

// Parameter describes one ABG reading: its form field, its display label
// and its reference range.
type Parameter struct {
	Field   string
	Label   string
	RefLow  float64
	RefHigh float64
	// LowerOnly skips the upper bound in the range check. SaO2 cannot be
	// too high.
	LowerOnly bool
	Decimals  int
	Step      string
	readingOf func(Sample) float64
	assign    func(*Sample, float64)
}

func (p Parameter) Value(s Sample) float64 { return p.readingOf(s) }

func (p Parameter) Set(s *Sample, v float64) { p.assign(s, v) }

// InRange reports whether v lies inside the closed reference range.
func (p Parameter) InRange(v float64) bool {
	if v < p.RefLow {
		return false
	}
	return p.LowerOnly || v <= p.RefHigh
}

// Format renders v with at least the parameter's display precision.
func (p Parameter) Format(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if decimalsOf(s) < p.Decimals {
		s = strconv.FormatFloat(v, 'f', p.Decimals, 64)
	}
	return s
}

func decimalsOf(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

// Parameters lists the readings in feature order.
var Parameters = []Parameter{
	{
		Field: "ph", Label: "pH (Normal: 7.35 - 7.45)",
		RefLow: 7.35, RefHigh: 7.45,
		Decimals: 2, Step: "0.01",
		readingOf: func(s Sample) float64 { return s.PH },
		assign:    func(s *Sample, v float64) { s.PH = v },
	},
	{
		Field: "pco2", Label: "pCO₂ (Normal: 35 - 45 mmHg)",
		RefLow: 35, RefHigh: 45,
		Decimals: 1, Step: "0.1",
		readingOf: func(s Sample) float64 { return s.PCO2 },
		assign:    func(s *Sample, v float64) { s.PCO2 = v },
	},
	{
		Field: "po2", Label: "pO₂ (Normal: 75 - 100 mmHg)",
		RefLow: 75, RefHigh: 100,
		Decimals: 1, Step: "0.1",
		readingOf: func(s Sample) float64 { return s.PO2 },
		assign:    func(s *Sample, v float64) { s.PO2 = v },
	},
	{
		Field: "hco3", Label: "HCO₃ (Normal: 22 - 26 mEq/L)",
		RefLow: 22, RefHigh: 26,
		Decimals: 1, Step: "0.1",
		readingOf: func(s Sample) float64 { return s.HCO3 },
		assign:    func(s *Sample, v float64) { s.HCO3 = v },
	},
	{
		Field: "sao2", Label: "SaO₂ (Normal: 95 - 100%)",
		RefLow: 95, RefHigh: 100, LowerOnly: true,
		Decimals: 1, Step: "0.1",
		readingOf: func(s Sample) float64 { return s.SaO2 },
		assign:    func(s *Sample, v float64) { s.SaO2 = v },
	},
}

// Plausibility flags readings outside their reference ranges. It is
// informational only: the classifier alone decides the status.
type Plausibility struct {
	PH       bool `json:"ph"`
	PCO2     bool `json:"pco2"`
	PO2      bool `json:"po2"`
	HCO3     bool `json:"hco3"`
	SaO2     bool `json:"sao2"`
	Abnormal bool `json:"abnormal"`
}

// CheckPlausibility evaluates each reading against its reference range.
func CheckPlausibility(s Sample) Plausibility {
	out := Plausibility{
		PH:   !Parameters[0].InRange(s.PH),
		PCO2: !Parameters[1].InRange(s.PCO2),
		PO2:  !Parameters[2].InRange(s.PO2),
		HCO3: !Parameters[3].InRange(s.HCO3),
		SaO2: !Parameters[4].InRange(s.SaO2),
	}
	out.Abnormal = out.PH || out.PCO2 || out.PO2 || out.HCO3 || out.SaO2
	return out
}

// Flagged returns the field names of the implausible readings.
func (p Plausibility) Flagged() []string {
	var out []string
	for i, bad := range []bool{p.PH, p.PCO2, p.PO2, p.HCO3, p.SaO2} {
		if bad {
			out = append(out, classifier.FeatureNames[i])
		}
	}
	return out
}

// TimestampLayout is the local-time layout of Record.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Columns is the fixed column order of the results log.
var Columns = []string{"Timestamp", "Patient Name", "pH", "pCO2", "pO2", "HCO3", "SaO2", "Status"}

// Record is one row of the results log. Records are append-only.
type Record struct {
	Timestamp   string  `json:"timestamp"`
	PatientName string  `json:"patient_name"`
	PH          float64 `json:"ph"`
	PCO2        float64 `json:"pco2"`
	PO2         float64 `json:"po2"`
	HCO3        float64 `json:"hco3"`
	SaO2        float64 `json:"sao2"`
	Status      Status  `json:"status"`
}

// NewRecord builds the log row for an analysed sample.
func NewRecord(timestamp string, s Sample, status Status) Record {
	return Record{
		Timestamp:   timestamp,
		PatientName: s.PatientName,
		PH:          s.PH,
		PCO2:        s.PCO2,
		PO2:         s.PO2,
		HCO3:        s.HCO3,
		SaO2:        s.SaO2,
		Status:      status,
	}
}

// Row returns the record's cells in Columns order.
func (r Record) Row() []interface{} {
	return []interface{}{r.Timestamp, r.PatientName, r.PH, r.PCO2, r.PO2, r.HCO3, r.SaO2, string(r.Status)}
}

func (r Record) Abnormal() bool { return r.Status == StatusAbnormal }
