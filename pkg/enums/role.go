package enums

import "slices"

// Role is the platform role carried in access tokens. Only admin and finance
// may touch payouts; the others exist so their tokens still parse.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleFinance  Role = "finance"
	RoleVendor   Role = "vendor"
	RoleCustomer Role = "customer"
)

var roles = []Role{RoleAdmin, RoleFinance, RoleVendor, RoleCustomer}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return slices.Contains(roles, r) }

func ParseRole(value string) (Role, error) {
	return parse("role", value, roles)
}
