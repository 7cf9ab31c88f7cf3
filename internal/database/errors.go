// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package database

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrCustomerNotFound is returned when a customer has no row in the feature table.
var ErrCustomerNotFound = errors.New("customer not found")

// NotFoundError lists the requested customers that have no feature row.
type NotFoundError struct {
	IDs []string
}

// Error implements error.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%d customers not found: %s", len(e.IDs), strings.Join(e.IDs, ", "))
}

// Is lets errors.Is match ErrCustomerNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrCustomerNotFound
}

// closeQuietly closes a resource in error paths where Close errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
