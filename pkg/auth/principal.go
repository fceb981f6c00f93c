package auth

import (
	"context"
	"fmt"
	"strings"
)

type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleSalonOwner Role = "OWNER"
	RoleAdmin      Role = "ADMIN"
)

// Principal is the authenticated caller, resolved once per request.
type Principal struct {
	Role Role
	ID   string
}

func NewPrincipal(role, id string) (Principal, error) {
	if id == "" {
		return Principal{}, fmt.Errorf("principal without subject")
	}
	switch r := Role(strings.ToUpper(role)); r {
	case RoleCustomer, RoleSalonOwner, RoleAdmin:
		return Principal{Role: r, ID: id}, nil
	case "USER":
		return Principal{Role: RoleCustomer, ID: id}, nil
	default:
		return Principal{}, fmt.Errorf("unknown role %q", role)
	}
}

func Customer(id string) Principal   { return Principal{Role: RoleCustomer, ID: id} }
func SalonOwner(id string) Principal { return Principal{Role: RoleSalonOwner, ID: id} }
func Admin(id string) Principal      { return Principal{Role: RoleAdmin, ID: id} }

func (p Principal) IsAdmin() bool      { return p.Role == RoleAdmin }
func (p Principal) IsCustomer() bool   { return p.Role == RoleCustomer }
func (p Principal) IsSalonOwner() bool { return p.Role == RoleSalonOwner }
func (p Principal) IsZero() bool       { return p.ID == "" }

// Owns reports whether the principal is the given customer or an admin.
func (p Principal) Owns(customerID string) bool {
	return p.IsAdmin() || (p.IsCustomer() && p.ID == customerID)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && !p.IsZero()
}
