package storage

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidEntity is returned for entity keys that are not safe file names.
	ErrInvalidEntity = errors.New("invalid entity key")
)

// Line is one persisted invoice line item.
type Line struct {
	ID            int64   `json:"id"`
	InvoiceNumber string  `json:"invoice_number"`
	IssueDate     string  `json:"issue_date"`
	ProductName   string  `json:"product_name"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	LineTotal     float64 `json:"line_total"`
	InvoiceTotal  float64 `json:"invoice_total"`
}

// Date parses IssueDate. The second result is false when the date is empty
// or in no known layout.
func (l Line) Date() (time.Time, bool) {
	return ParseDate(l.IssueDate)
}

// Invoice is a normalized invoice ready to be stored.
type Invoice struct {
	Number    string
	IssueDate string
	Total     float64
	Items     []Item
}

// Item is one product line of an Invoice.
type Item struct {
	ProductName string
	Quantity    float64
	UnitPrice   float64
	LineTotal   float64
}

// Filter narrows a Query. Zero fields do not filter.
type Filter struct {
	Product string
	Invoice string
	From    time.Time
	To      time.Time
}

func (f Filter) matchesDate(l Line) bool {
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	d, ok := l.Date()
	if !ok {
		return false
	}
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	return true
}

// Day-first layouts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate reads an invoice issue date. Ambiguous numeric dates are read
// day first. The result is truncated to the day in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
