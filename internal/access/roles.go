// Package access holds the role-based authorization injected into every mutating entrypoint.
package access

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a capability a caller may hold.
type Role string

const (
	// RoleScoringManager submits per-epoch DLP performance data.
	RoleScoringManager Role = "SCORING_MANAGER"
	// RoleMaintainer administers epochs, bonuses, weights and distribution schedules.
	RoleMaintainer Role = "MAINTAINER"
	// RoleRewardDeployer triggers tranche distributions.
	RoleRewardDeployer Role = "REWARD_DEPLOYER"
	// RoleCustodian may move funds out of a treasury.
	RoleCustodian Role = "CUSTODIAN"
)

var ErrUnauthorized = errors.New("caller is not authorized")

// Authorizer decides whether caller holds role.
type Authorizer interface {
	Authorize(caller common.Address, role Role) error
}

// UnauthorizedError carries the caller and the role it was missing.
type UnauthorizedError struct {
	Caller common.Address
	Role   Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: %s lacks role %s", ErrUnauthorized, e.Caller.Hex(), e.Role)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// Roles is an in-memory role table.
type Roles struct {
	mu      sync.RWMutex
	members map[Role]map[common.Address]struct{}
}

func NewRoles() *Roles {
	return &Roles{members: make(map[Role]map[common.Address]struct{})}
}

// Grant adds caller to role.
func (r *Roles) Grant(role Role, caller common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[role]
	if !ok {
		set = make(map[common.Address]struct{})
		r.members[role] = set
	}
	set[caller] = struct{}{}
}

// Revoke removes caller from role.
func (r *Roles) Revoke(role Role, caller common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[role], caller)
}

func (r *Roles) HasRole(role Role, caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[role][caller]
	return ok
}

func (r *Roles) Authorize(caller common.Address, role Role) error {
	if !r.HasRole(role, caller) {
		return &UnauthorizedError{Caller: caller, Role: role}
	}
	return nil
}
