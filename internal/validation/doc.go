// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package validation checks data before it is admitted into the pipeline.
//
// It has two layers:
//
//   - A singleton go-playground/validator instance with human-readable error
//     translation, used for struct tags on records and API requests.
//   - An expectation Suite that evaluates a batch of transactions against a
//     declared, ordered list of expectations (nullability, value ranges,
//     finiteness, timestamp sanity and amount ≈ quantity × unit price).
//
// A Suite never modifies the batch it checks. The Result lists every
// expectation in declaration order with its unexpected-row count and a
// bounded sample of violations, so identical input always yields an
// identical Result. A batch passes only if every expectation passes; there
// is no partial acceptance.
//
//	suite := validation.NewSuite(validation.DefaultSuiteConfig())
//	res := suite.Validate(batch)
//	if !res.Success {
//	    for _, name := range res.FailedExpectations() { ... }
//	}
package validation
