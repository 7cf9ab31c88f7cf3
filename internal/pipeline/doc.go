// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package pipeline runs the batch CLV pipeline end to end.

Stages run strictly in order:

 1. ingest: load transactions newer than the watermark and validate them
 2. features: build the training feature table from the validated history
 3. probabilistic: fit BG/NBD and Gamma-Gamma and score every customer
 4. segmentation: merge, select the best clustering model and label customers
 5. store: replace the processed feature table and export it

A run with no new data ends with status skipped unless Force is set, in
which case the models are retrained on the existing history. A validation
failure ends the run with status failed and leaves the watermark untouched.

Only one run executes at a time per Runner; a concurrent call returns
ErrRunInProgress immediately.
*/
package pipeline
