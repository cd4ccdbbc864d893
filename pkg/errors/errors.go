/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package errors defines the error kinds shared across the module. A transient
// error tells the caller that a retry may succeed; any other error fails the
// same way every time. ErrNotFound is the sentinel for missing content.
package errors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that content at a given address could not be found.
var ErrNotFound = errors.New("not found")

type transient struct {
	err error
}

func (e *transient) Error() string {
	return e.err.Error()
}

func (e *transient) Unwrap() error {
	return e.err
}

// NewTransient marks the given error as transient.
func NewTransient(err error) error {
	return &transient{err: err}
}

// NewTransientf returns a transient error built from the given format and arguments.
func NewTransientf(format string, a ...interface{}) error {
	return &transient{err: fmt.Errorf(format, a...)}
}

// IsTransient returns true if the given error, or any error it wraps, is transient.
func IsTransient(err error) bool {
	var t *transient

	return errors.As(err, &t)
}
