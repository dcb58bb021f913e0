package domain

import (
	"strings"
	"time"
)

// Gender is the cohort gender segment.
type Gender string

const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderUnknown Gender = "U"
)

// Age band bounds. Bands are decades clamped to [10, 60].
const (
	MinAgeBand = 10
	MaxAgeBand = 60
)

// Cohort is the (age band, gender) segment of a requester. AgeBand is nil
// when the user's age cannot be derived; such a cohort never personalizes.
type Cohort struct {
	AgeBand *int
	Gender  Gender
}

// Resolved reports whether the cohort can be used for personalization.
func (c Cohort) Resolved() bool {
	return c.AgeBand != nil
}

// CohortStat holds the counters scoped to one (restaurant, age band, gender).
type CohortStat struct {
	RestaurantID int64
	AgeBand      int
	Gender       Gender
	LikeCount    int64
	ReviewCount  int64
	RatingSum    int64
}

// MapGender maps a free-text gender to a cohort gender, defaulting to U.
func MapGender(raw string) Gender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// AgeBandFromBirth returns the age band for a birth date as of now, or nil
// when the birth date is missing or lies in the future.
func AgeBandFromBirth(birth *time.Time, now time.Time) *int {
	if birth == nil || birth.IsZero() {
		return nil
	}
	b := birth.UTC()
	n := now.UTC()
	if b.After(n) {
		return nil
	}

	age := n.Year() - b.Year()
	if n.Month() < b.Month() || (n.Month() == b.Month() && n.Day() < b.Day()) {
		age--
	}

	band := (age / 10) * 10
	if band < MinAgeBand {
		band = MinAgeBand
	}
	if band > MaxAgeBand {
		band = MaxAgeBand
	}
	return &band
}

// ResolveCohort derives a cohort from the raw user profile fields.
func ResolveCohort(birth *time.Time, gender string, now time.Time) Cohort {
	return Cohort{
		AgeBand: AgeBandFromBirth(birth, now),
		Gender:  MapGender(gender),
	}
}
