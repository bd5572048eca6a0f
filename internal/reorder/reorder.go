// Package reorder estimates daily demand and reorder points from the
// purchase history stored for an entity.
package reorder

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/kalambet/stockai/internal/storage"
)

// Default Analyzer parameters. NewAnalyzer starts from these.
const (
	DefaultLeadDays     = 5
	DefaultSafetyDays   = 7
	DefaultSafetyFactor = 0.2
)

// Recommendation is the reorder estimate for one product.
type Recommendation struct {
	Product       string    `json:"product"`
	DailyDemand   float64   `json:"daily_demand"`
	SafetyStock   int       `json:"safety_stock"`
	ReorderPoint  int       `json:"reorder_point"`
	FirstPurchase time.Time `json:"first_purchase"`
	LastPurchase  time.Time `json:"last_purchase"`
	PurchaseDays  int       `json:"purchase_days"`
	TotalUnits    float64   `json:"total_units"`
}

// LineReader reads every stored line of an entity.
type LineReader interface {
	ReadAll(entity string) ([]storage.Line, error)
}

// Analyzer computes recommendations with a fixed replenishment lead time and
// a safety stock of SafetyFactor times SafetyDays of demand. A zero
// SafetyDays or SafetyFactor disables safety stock; a non-positive LeadDays
// falls back to DefaultLeadDays.
type Analyzer struct {
	Lines        LineReader
	LeadDays     float64
	SafetyDays   float64
	SafetyFactor float64
}

// NewAnalyzer returns an Analyzer over lines with the default parameters.
func NewAnalyzer(lines LineReader) *Analyzer {
	return &Analyzer{
		Lines:        lines,
		LeadDays:     DefaultLeadDays,
		SafetyDays:   DefaultSafetyDays,
		SafetyFactor: DefaultSafetyFactor,
	}
}

// Compute returns the recommendations for entity, sorted by product.
func (a *Analyzer) Compute(ctx context.Context, entity string) ([]Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := a.Lines.ReadAll(entity)
	if err != nil {
		return nil, err
	}
	return a.Recommend(lines), nil
}

// Recommend computes recommendations from lines. Lines without a parseable
// date, a product name or a finite quantity are ignored, as are products
// bought on fewer than two distinct days.
func (a *Analyzer) Recommend(lines []storage.Line) []Recommendation {
	lead, safetyDays, factor := a.params()

	daily := make(map[string]map[time.Time]float64)
	for _, l := range lines {
		d, ok := l.Date()
		if !ok || l.ProductName == "" || math.IsNaN(l.Quantity) || math.IsInf(l.Quantity, 0) {
			continue
		}
		byDay, ok := daily[l.ProductName]
		if !ok {
			byDay = make(map[time.Time]float64)
			daily[l.ProductName] = byDay
		}
		byDay[d] += l.Quantity
	}

	recs := []Recommendation{}
	for product, byDay := range daily {
		if len(byDay) < 2 {
			continue
		}

		var first, last time.Time
		var total float64
		for d, q := range byDay {
			if first.IsZero() || d.Before(first) {
				first = d
			}
			if last.IsZero() || d.After(last) {
				last = d
			}
			total += q
		}

		span := math.Round(last.Sub(first).Hours() / 24)
		demand := total
		if span > 0 {
			demand = total / span
		}

		safety := roundInt(demand * safetyDays * factor)
		recs = append(recs, Recommendation{
			Product:       product,
			DailyDemand:   math.RoundToEven(demand*100) / 100,
			SafetyStock:   safety,
			ReorderPoint:  roundInt(demand*lead) + safety,
			FirstPurchase: first,
			LastPurchase:  last,
			PurchaseDays:  len(byDay),
			TotalUnits:    total,
		})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Product < recs[j].Product })
	return recs
}

func (a *Analyzer) params() (lead, safetyDays, factor float64) {
	lead, safetyDays, factor = a.LeadDays, a.SafetyDays, a.SafetyFactor
	if lead <= 0 {
		lead = DefaultLeadDays
	}
	if safetyDays < 0 {
		safetyDays = DefaultSafetyDays
	}
	if factor < 0 {
		factor = DefaultSafetyFactor
	}
	return lead, safetyDays, factor
}

// roundInt rounds half to even.
func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}
