package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidHorizon is returned for a forecast horizon below one day
	ErrInvalidHorizon = errors.New("forecast horizon must be at least one day")

	// ErrInsufficientHistory is returned when the training window is shorter than the copied weeks
	ErrInsufficientHistory = errors.New("not enough history to copy previous weeks")

	// ErrInsufficientActuals is returned when a cutoff has fewer observed days than the horizon
	ErrInsufficientActuals = errors.New("not enough observed days after cutoff")
)

// ParseError reports a fatal problem in a counter export file
type ParseError struct {
	Path   string
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %s: %q", e.Path, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// IsTransient returns false as parse errors are permanent
func (e *ParseError) IsTransient() bool {
	return false
}

// OverlapError reports a merge input that does not start after the previous file for a station
type OverlapError struct {
	Path      string
	StationID string
	Previous  time.Time
	Next      time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: station %s starts at %s, not after %s from earlier files",
		e.Path, e.StationID, e.Next.Format(TimestampLayout), e.Previous.Format(TimestampLayout))
}

// IsTransient returns false as overlapping inputs must be fixed by the caller
func (e *OverlapError) IsTransient() bool {
	return false
}

// GapError reports a missing day in a daily series handed to the forecaster
type GapError struct {
	StationID string
	After     time.Time
	Next      time.Time
}

func (e *GapError) Error() string {
	return fmt.Sprintf("station %s: daily series has a gap between %s and %s",
		e.StationID, e.After.Format("2006-01-02"), e.Next.Format("2006-01-02"))
}

// IsTransient returns false as gaps need explicit imputation
func (e *GapError) IsTransient() bool {
	return false
}

// Missing returns the number of days absent between After and Next
func (e *GapError) Missing() int {
	return int(e.Next.Sub(e.After).Hours()/24) - 1
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsTransient returns false as missing resources stay missing
func (e *NotFoundError) IsTransient() bool {
	return false
}

// UpstreamError represents a failed call to an external service
type UpstreamError struct {
	Service string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s upstream returned %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s upstream request failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether retrying later may succeed
func (e *UpstreamError) IsTransient() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}
