package service

import "github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/permission"

// SystemActorID identifies scheduled jobs in the audit log.
const SystemActorID = "system:expiry-sweep"

// Actor is the caller of a service operation, resolved once at the boundary.
type Actor struct {
	UserID string
	Name   string
	// Role is the back-office role; empty for buyers.
	Role       string
	IsAdmin    bool
	IsSystem   bool
	UserType   permission.UserType
	IsVerified bool
}

// SystemActor is used by the expiry sweep.
func SystemActor() Actor {
	return Actor{UserID: SystemActorID, Name: "Expiry sweep", IsSystem: true}
}

func (a Actor) permissionInput() permission.Input {
	return permission.Input{
		UserType:   a.UserType,
		IsVerified: a.IsVerified,
		IsAdmin:    a.IsAdmin,
	}
}

// auditIdentity returns the admin columns of an audit row; nil for buyers and jobs.
func (a Actor) auditIdentity() (id, name, role *string) {
	if !a.IsAdmin {
		return nil, nil, nil
	}
	id, name, role = &a.UserID, &a.Name, &a.Role
	return
}
