// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package supervisor runs the long-lived parts of `lodestar serve` under suture v4.

The tree has two layers so a crashing pipeline never takes the API down:

	RootSupervisor ("lodestar")
	├── PipelineSupervisor ("pipeline-layer")
	│   └── PipelineService (scheduled pipeline runs)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Supervisor events are logged through sutureslog on the zerolog-backed slog
logger returned by logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(services.NewPipelineService(runner, cfg, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second, logger))
	err = tree.Serve(ctx)
*/
package supervisor
