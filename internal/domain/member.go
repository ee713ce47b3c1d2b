/**
 * @description
 * This file defines the core domain models for the treasury-service.
 * Members are mirrored from the user directory; dues amounts depend on the
 * member's academic year tier.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paise) to
 *   avoid floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// YearTier is the academic-year grouping that determines a member's dues amount.
type YearTier string

const (
	YearFirst  YearTier = "1st"
	YearSecond YearTier = "2nd"
	YearThird  YearTier = "3rd"
	YearFourth YearTier = "4th"
)

// AllYearTiers lists tiers in ascending order.
var AllYearTiers = []YearTier{YearFirst, YearSecond, YearThird, YearFourth}

// Valid reports whether the tier is one of the known academic years.
func (y YearTier) Valid() bool {
	switch y {
	case YearFirst, YearSecond, YearThird, YearFourth:
		return true
	}
	return false
}

// Role gates treasurer-only operations.
type Role string

const (
	RoleMember    Role = "member"
	RoleTreasurer Role = "treasurer"
)

// Member is a club member as known to the treasury.
// This struct maps directly to the `members` table in the database.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Year      YearTier  `json:"year"`
	Role      Role      `json:"role"`
	TotalPaid int64     `json:"total_paid"` // in paise
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
