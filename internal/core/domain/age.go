package domain

import "time"

// AgeBucket classifies how stale a capture date is.
type AgeBucket string

const (
	BucketFresh   AgeBucket = "fresh"   // < 1 year
	BucketMedium  AgeBucket = "medium"  // < 2 years
	BucketOld     AgeBucket = "old"     // < 3 years
	BucketVeryOld AgeBucket = "veryOld" // >= 3 years
	BucketUnknown AgeBucket = "unknown" // capture date missing or unparseable
)

const hoursPerYear = 365.25 * 24

// AgeYears returns the age of a capture date in fractional years at the
// given reference time.
func AgeYears(captureDate, now time.Time) float64 {
	return now.Sub(captureDate).Hours() / hoursPerYear
}

// BucketForAge maps an age in years onto its bucket.
func BucketForAge(ageYears float64) AgeBucket {
	switch {
	case ageYears < 1:
		return BucketFresh
	case ageYears < 2:
		return BucketMedium
	case ageYears < 3:
		return BucketOld
	default:
		return BucketVeryOld
	}
}

// ClassifyAge derives age and bucket from a nullable capture date. It is
// total: a nil date yields a nil age and the unknown bucket.
func ClassifyAge(captureDate *time.Time, now time.Time) (*float64, AgeBucket) {
	if captureDate == nil {
		return nil, BucketUnknown
	}
	age := AgeYears(*captureDate, now)
	return &age, BucketForAge(age)
}
