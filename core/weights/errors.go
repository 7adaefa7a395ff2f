package weights

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers should match them with errors.Is.
var (
	ErrDuplicateContributor = errors.New("duplicate contributor")
	ErrUnknownContributor   = errors.New("unknown contributor")
	ErrUnknownModifier      = errors.New("unknown modifier")
	ErrUnknownVariation     = errors.New("unknown variation")
	ErrUnexpectedVariation  = errors.New("unexpected variation")
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownSubsample     = errors.New("unknown subsample")
	ErrDuplicateWeight      = errors.New("weight already added")
	ErrNotComputed          = errors.New("weights not computed")
	ErrExternalRegistered   = errors.New("external weight shadows a registered contributor")
	ErrUnsplitCategory      = errors.New("category scope on a sample not split by category")
)

// ConfigError reports a scope configuration entry that cannot be resolved.
type ConfigError struct {
	Sample      string
	Scope       string
	Contributor string
	Err         error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sample %q, scope %q: contributor %q: %v", e.Sample, e.Scope, e.Contributor, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
