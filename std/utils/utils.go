package utils

import (
	"golang.org/x/exp/constraints"
)

// Meshd version from source control
// Note: this is only defined in meshd itself, not for other projects.
var MeshdVersion string = "unknown"

// IdPtr is the pointer version of id: 'a->'a
func IdPtr[T any](value T) *T {
	return &value
}

// ConvIntPtr converts an integer pointer to another type
func ConvIntPtr[A, B constraints.Integer](a *A) *B {
	if a == nil {
		return nil
	} else {
		b := B(*a)
		return &b
	}
}

// If is the ternary operator (eager evaluation)
func If[T any](cond bool, t, f T) T {
	if cond {
		return t
	} else {
		return f
	}
}

// Min returns the smaller of two integers.
func Min[T constraints.Integer](a, b T) T {
	if a < b {
		return a
	}
	return b
}
