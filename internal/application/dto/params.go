package dto

import (
	"time"

	"github.com/jhoicas/stockflow/internal/domain"
)

// ParseTimeParam interpreta un parámetro de consulta como RFC3339 o YYYY-MM-DD en loc.
// Para fechas sin hora, endOfDay=true devuelve el último instante del día.
// Vacío devuelve nil.
func ParseTimeParam(field, s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return nil, domain.NewValidationError(domain.FieldError{Field: field, Tag: "datetime", Param: "2006-01-02"})
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &d, nil
}

// ParseDate interpreta YYYY-MM-DD en loc (medianoche).
func ParseDate(field, s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError(domain.FieldError{Field: field, Tag: "datetime", Param: "2006-01-02"})
	}
	return d, nil
}

// FormatDate formatea t como YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
