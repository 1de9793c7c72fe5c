package authorization

import (
	"errors"
	"fmt"
)

var (
	ErrRoleMappingNotImplemented = errors.New("authorization: role mapping not implemented")
	ErrUnknownPrivilege          = errors.New("authorization: unknown privilege")
	ErrUnknownRole               = errors.New("authorization: unknown role")
	ErrUnknownCredential         = errors.New("authorization: unknown credential type")
	ErrForbidden                 = errors.New("authorization: forbidden")
)

// UnmappedRoleError is returned when a role has no platform credential.
type UnmappedRoleError struct {
	Role RoleName
}

func (e *UnmappedRoleError) Error() string {
	return fmt.Sprintf("authorization: role mapping not implemented for role %q", string(e.Role))
}

func (e *UnmappedRoleError) Is(target error) bool {
	return target == ErrRoleMappingNotImplemented
}

// ForbiddenError carries the privilege that was denied.
type ForbiddenError struct {
	Privilege Privilege
	Reason    string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("authorization: privilege %s not granted", e.Privilege)
	}
	return fmt.Sprintf("authorization: privilege %s not granted: %s", e.Privilege, e.Reason)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}
