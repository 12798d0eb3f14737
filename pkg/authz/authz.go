package authz

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
)

// Role levels, lowest to highest. Owner inherits every admin capability.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// Objects and actions guarded by the capability check.
const (
	ObjectWebsite = "website"
	ObjectUser    = "user"

	ActionModerate      = "moderate"
	ActionDelete        = "delete"
	ActionAdjustCredits = "adjust_credits"
	ActionBan           = "ban"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var rank = map[Role]int{
	RoleUser:  0,
	RoleAdmin: 1,
	RoleOwner: 2,
}

var Module = fx.Module("authz", fx.Provide(New))

// Authorizer answers (actor role, object, action) capability questions.
// The "admin cannot touch admin/owner" invariant lives in Outranks so it is
// testable in one place instead of scattered boolean checks.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{string(RoleAdmin), ObjectWebsite, ActionModerate},
		{string(RoleAdmin), ObjectWebsite, ActionDelete},
		{string(RoleAdmin), ObjectUser, ActionAdjustCredits},
		{string(RoleAdmin), ObjectUser, ActionBan},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}

	if _, err := e.AddGroupingPolicy(string(RoleOwner), string(RoleAdmin)); err != nil {
		return nil, err
	}

	return &Authorizer{enforcer: e}, nil
}

func (a *Authorizer) Can(actor Role, object, action string) bool {
	ok, err := a.enforcer.Enforce(string(actor), object, action)
	if err != nil {
		return false
	}
	return ok
}

// Outranks reports whether the actor sits strictly above the target in the
// role hierarchy. Mutations on user records require both Can and Outranks.
func (a *Authorizer) Outranks(actor, target Role) bool {
	return rank[actor] > rank[target]
}
