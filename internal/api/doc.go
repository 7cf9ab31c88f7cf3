// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package api serves the processed feature table and production models over HTTP.

Routes:

	GET  /api/v1/health            pipeline status and production model versions
	GET  /api/v1/customers/{id}    one processed feature record
	POST /api/v1/predict/clv       probabilistic CLV for {"customer_ids": [...]}
	POST /api/v1/predict/segment   labeled segments for {"customer_ids": [...]}
	GET  /metrics                  Prometheus metrics

Every JSON response uses the envelope

	{"success": bool, "data": ..., "error": {...}, "meta": {...}}

Unknown customer ids return 404 with the missing ids in error.details.
Prediction routes return 503 until production models can be loaded.

The /api/v1 group is rate limited per client IP with go-chi/httprate.
CLV predictions are cached per loaded model handle and feature record.
*/
package api
