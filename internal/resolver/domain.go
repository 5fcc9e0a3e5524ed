package resolver

import (
	"github.com/google/uuid"
)

// Resource carries the ownership attribute of the object a point query is
// evaluated against. A nil OwnerID on an :own-scoped check resolves to
// deny.
type Resource struct {
	OwnerID *uuid.UUID
}

// Source origins.
const (
	SourceRole     = "role"
	SourceOverride = "override"
)

// Source records where an effective permission came from, for the
// administrative permission matrix.
type Source struct {
	Origin    string     `json:"origin"`
	RoleID    *uuid.UUID `json:"role_id,omitempty"`
	RoleName  string     `json:"role_name,omitempty"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	GrantType string     `json:"grant_type,omitempty"`
}

// EffectiveSet is the merged outcome of role grants and overrides for one
// user. Keys present in Denied carry an explicit denial that beats any
// allow.
type EffectiveSet struct {
	Allowed map[string]bool   `json:"allowed"`
	Denied  map[string]bool   `json:"denied"`
	Sources map[string]Source `json:"sources"`
}

func newEffectiveSet() EffectiveSet {
	return EffectiveSet{
		Allowed: make(map[string]bool),
		Denied:  make(map[string]bool),
		Sources: make(map[string]Source),
	}
}
