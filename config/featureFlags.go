package config

import (
	"log"
	"sync"
	"time"
)

// StrictGstSchemes rejects line items that apply IGST together with CGST or SGST.
//
// Set via env:
// - GST_STRICT_SCHEMES=false to accept mixed schemes (the calculator sums whatever is set)
func StrictGstSchemes() bool {
	return boolFromEnv("GST_STRICT_SCHEMES", true)
}

// SharedCounterNamespace makes every prefix of a business draw from one daily counter,
// which is how numbering behaved before counters were scoped per prefix.
//
// Set via env:
// - COUNTER_SHARED_ACROSS_PREFIXES=true
func SharedCounterNamespace() bool {
	return boolFromEnv("COUNTER_SHARED_ACROSS_PREFIXES", false)
}

// RoundOffDefault is used for new businesses that have no numbering settings yet.
func RoundOffDefault() bool {
	return boolFromEnv("ROUND_OFF_DEFAULT", true)
}

var (
	locOnce sync.Once
	loc     *time.Location
)

// AppLocation is the time zone invoice dates are read in when building date keys.
// APP_TIMEZONE, default Asia/Kolkata.
func AppLocation() *time.Location {
	locOnce.Do(func() {
		name := stringFromEnv("APP_TIMEZONE", "Asia/Kolkata")
		l, err := time.LoadLocation(name)
		if err != nil {
			log.Printf("unknown APP_TIMEZONE %q, using UTC: %v", name, err)
			l = time.UTC
		}
		loc = l
	})
	return loc
}
