// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package probabilistic fits the buy-till-you-die CLV models.
//
//   - BG/NBD (Fader, Hardie and Lee 2005) models the number of repeat
//     purchases given frequency, recency and customer age T.
//   - Gamma-Gamma (Fader, Hardie and Lee 2005b) models the expected value of a
//     transaction given a customer's repeat-purchase history.
//
// Both are fitted by maximising a penalised log-likelihood with Nelder-Mead
// over log-parameters, so the fitted parameters are always positive.
//
// The Estimator combines them into predicted_purchases_90d,
// expected_monetary_value and probabilistic_clv_90d for every customer in the
// training window. The Gamma-Gamma model is fitted on, and applied to, only
// customers with at least one repeat purchase; one-time buyers use their
// single observed order value.
package probabilistic
