// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package services adapts Lodestar components to suture.Service.

PipelineService runs the CLV pipeline on startup and then on a fixed
interval. A failed run is logged and the service keeps its schedule, so the
supervisor only restarts it after a panic.

HTTPServerService turns http.Server's blocking ListenAndServe into a
context-aware Serve with graceful Shutdown.
*/
package services
