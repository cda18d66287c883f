// package common contains common types that are used throughout this module. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// Optional holds a value that may be absent.
// It replaces sentinel encodings (such as a zero index meaning "none") so that a valid
// zero value is never confused with an absent one.
type Optional[T any] struct {
	value T
	valid bool
}

// Some returns an Optional holding v.
//
// Parameters:
//   - v: the value to wrap
//
// Returns:
//   - Optional[T]: a present Optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, valid: true}
}

// None returns an absent Optional.
//
// Returns:
//   - Optional[T]: an Optional with no value
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// FromPtr converts a nilable pointer into an Optional, mapping the pointed-to value through conv.
// This is the bridge between the document's pointer-valued optional fields and the asset's explicit optionals.
//
// Parameters:
//   - p: the source pointer, nil when absent
//   - conv: conversion applied to the pointed-to value
//
// Returns:
//   - Optional[T]: present when p is non-nil
func FromPtr[S, T any](p *S, conv func(S) T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(conv(*p))
}

// Get returns the wrapped value and whether it is present.
//
// Returns:
//   - T: the value, or the zero value when absent
//   - bool: true if the value is present
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.valid
}

// IsPresent reports whether the Optional holds a value.
//
// Returns:
//   - bool: true if the value is present
func (o Optional[T]) IsPresent() bool {
	return o.valid
}

// MustGet returns the wrapped value and panics if it is absent.
//
// Returns:
//   - T: the wrapped value
func (o Optional[T]) MustGet() T {
	if !o.valid {
		panic("common: MustGet on absent Optional")
	}
	return o.value
}

func (o Optional[T]) String() string {
	if !o.valid {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.value)
}
