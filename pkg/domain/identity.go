package domain

import "strings"

// Identity identifies the caller of a turn. The orchestration logic never
// inspects it; it is handed to action executors to scope their side effects.
type Identity struct {
	UserID string `json:"user_id" yaml:"user_id" mapstructure:"user_id"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
}

// Validate returns ErrMissingIdentity when no user ID is set.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return ErrMissingIdentity
	}
	return nil
}
