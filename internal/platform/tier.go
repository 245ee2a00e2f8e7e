package platform

// Tier is the caller's authorization level, derived from live role
// membership at call time. Manager implies staff capability.
type Tier int

const (
	TierMember Tier = iota
	TierStaff
	TierManager
)

func (t Tier) String() string {
	switch t {
	case TierManager:
		return "manager"
	case TierStaff:
		return "staff"
	default:
		return "member"
	}
}

// AtLeast reports whether t grants the capabilities of want.
func (t Tier) AtLeast(want Tier) bool { return t >= want }

// TierOf derives the tier from the member's current roles. A nil member
// (someone not in the guild) is a plain member.
func TierOf(m *Member, staffRoleID, managerRoleID string) Tier {
	switch {
	case HasRole(m, managerRoleID):
		return TierManager
	case HasRole(m, staffRoleID):
		return TierStaff
	default:
		return TierMember
	}
}
