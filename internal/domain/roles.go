package domain

import "strings"

type Role string

const (
	RoleMerchant   Role = "merchant"
	RoleInfluencer Role = "influencer"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
)

func ParseRole(raw string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleMerchant, RoleInfluencer, RoleAdmin, RoleSystem:
		return r
	default:
		return ""
	}
}
