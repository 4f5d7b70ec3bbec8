// Package orchestrator brings a relay node up from an operator settings
// snapshot.
//
// A run cleans the working directory, renders the relay configuration,
// provisions the tunnel, downloads the executables and then launches them
// in order:
//
//  1. the monitoring agent, when monitoring is configured
//  2. the relay, listening on the fixed loopback ports
//  3. the tunnel client, in quick, fixed or token mode
//
// Once the tunnel is up its public hostname is resolved, either from
// configuration or by scanning the client log, and the connection links
// are built, persisted as the subscription file and optionally published.
//
// # Failure handling
//
// Every step records its outcome in a RunReport. Failures before the
// executables exist abort the run. Spawn failures are recorded and the run
// carries on, so the report may list a step failure while later steps still
// succeeded. Publishing and the keep-alive registration never fail a run.
//
// # Restarts
//
// Runs are serialized. Restart stops every managed process before starting
// a new run, and concurrent Restart calls are coalesced, so there is at
// most one process per managed name at any time.
//
// # Usage Example
//
//	orch := orchestrator.New(orchestrator.Config{
//	    Runtime:      rt,
//	    LoadSettings: config.LoadSettings,
//	    Table:        process.NewTable(rt.Timing.StopTimeout, nil),
//	    Downloader:   fetch.New(),
//	    Labels:       meta.New(rt.MetaURL, 5*time.Second),
//	    Publisher:    upload.New(10 * time.Second),
//	})
//	report := orch.Start(ctx)
//	defer orch.Shutdown()
package orchestrator
