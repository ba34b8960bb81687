package model

import "errors"

// Sentinel errors shared by the planner components.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrStorage          = errors.New("storage failure")
	ErrPermissionDenied = errors.New("notification permission denied")
)
