// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package inference scores customers with the production models.

Nothing is loaded when the package is imported. The first call to
Loader.Production reads the production BG/NBD, Gamma-Gamma and segmentation
artifacts from the registry, together with the scaler version recorded in
the segmentation artifact, and caches the resulting Handle. A failed load is
not cached, so the next call tries again. Reload replaces the cached handle
after a pipeline run promotes new models.

A Handle is immutable and safe for concurrent use:

	h, err := loader.Production(ctx)
	if err != nil {
		return err
	}
	clv, err := h.PredictCLV(summary)
	labeled, err := h.PredictSegments(batch)
*/
package inference
