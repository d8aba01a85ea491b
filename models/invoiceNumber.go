package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultInvoicePrefix = "INV"
	prefixLength         = 3
	dateKeyLayout        = "02012006"
	sequenceWidth        = 4
)

// InvoiceNumberCounterState is the per-day counter map of one prefix.
// Values never decrease and only advance when a document is committed.
type InvoiceNumberCounterState struct {
	Prefix        string         `json:"prefix"`
	DailyCounters map[string]int `json:"daily_counters"`
}

func NewInvoiceNumberCounterState(prefix string) InvoiceNumberCounterState {
	return InvoiceNumberCounterState{Prefix: prefix, DailyCounters: map[string]int{}}
}

// NextSequence is the number the next committed document of dateKey would get.
func (s InvoiceNumberCounterState) NextSequence(dateKey string) int {
	return s.DailyCounters[dateKey] + 1
}

// withCounter returns a copy with dateKey set to value; s is left alone.
func (s InvoiceNumberCounterState) withCounter(dateKey string, value int) InvoiceNumberCounterState {
	out := s.clone()
	out.DailyCounters[dateKey] = value
	return out
}

func (s InvoiceNumberCounterState) clone() InvoiceNumberCounterState {
	out := InvoiceNumberCounterState{Prefix: s.Prefix, DailyCounters: make(map[string]int, len(s.DailyCounters))}
	for k, v := range s.DailyCounters {
		out.DailyCounters[k] = v
	}
	return out
}

// NormalizePrefix uppercases raw, drops everything but A-Z and keeps the first three
// letters. An empty result falls back to fallback; one or two letters is an error.
func NormalizePrefix(raw string, fallback string) (string, error) {
	letters := lettersOnly(raw)
	if letters == "" {
		if fallback == "" {
			return "", &ValidationError{Err: ErrMalformedPrefix, Details: "prefix is empty and no default is configured"}
		}
		letters = lettersOnly(fallback)
	}
	if len(letters) < prefixLength {
		return "", &ValidationError{Err: ErrMalformedPrefix, Details: fmt.Sprintf("%q has fewer than %d letters", raw, prefixLength)}
	}
	return letters[:prefixLength], nil
}

func lettersOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DateKey formats the calendar day of t, in t's own location, as DDMMYYYY.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

func ParseDateKey(dateKey string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dateKeyLayout, dateKey, loc)
}

// FormatInvoiceNumber joins the parts, padding seq to four digits. Larger values print in full.
func FormatInvoiceNumber(prefix string, dateKey string, seq int) string {
	return fmt.Sprintf("%s%s%0*d", prefix, dateKey, sequenceWidth, seq)
}

// ParseInvoiceNumber splits a number produced by FormatInvoiceNumber.
func ParseInvoiceNumber(number string) (prefix string, dateKey string, seq int, ok bool) {
	if len(number) < prefixLength+len(dateKeyLayout)+sequenceWidth {
		return "", "", 0, false
	}
	prefix = number[:prefixLength]
	if lettersOnly(prefix) != prefix {
		return "", "", 0, false
	}
	dateKey = number[prefixLength : prefixLength+len(dateKeyLayout)]
	if _, err := ParseDateKey(dateKey, nil); err != nil {
		return "", "", 0, false
	}
	digits := number[prefixLength+len(dateKeyLayout):]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", "", 0, false
		}
	}
	seq, err := strconv.Atoi(digits)
	if err != nil || seq <= 0 {
		return "", "", 0, false
	}
	// extra leading zeros are not something FormatInvoiceNumber writes
	if FormatInvoiceNumber(prefix, dateKey, seq) != number {
		return "", "", 0, false
	}
	return prefix, dateKey, seq, true
}

// GenerateInvoiceNumber returns the next number for invoiceDate. With increment the
// returned state records the new count; without it (preview) the returned state equals
// the input. The input state is never modified.
func GenerateInvoiceNumber(invoiceDate time.Time, state InvoiceNumberCounterState, increment bool) (string, InvoiceNumberCounterState, error) {
	prefix, err := NormalizePrefix(state.Prefix, DefaultInvoicePrefix)
	if err != nil {
		return "", InvoiceNumberCounterState{}, err
	}
	dateKey := DateKey(invoiceDate)
	next := state.NextSequence(dateKey)

	newState := state.clone()
	newState.Prefix = prefix
	if increment {
		newState = newState.withCounter(dateKey, next)
	}
	return FormatInvoiceNumber(prefix, dateKey, next), newState, nil
}
