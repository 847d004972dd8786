// Package temporal provides Temporal client and worker integration for the
// periodic refresh of stored records.
//
// # Overview
//
//   - RefreshClient: starts on-demand refresh runs and maintains the schedule
//   - WorkerManager: registers the refresh workflow and its activities
//   - workflows.RefreshWorkflow: fetches, persists and announces each kind
//   - activities.RefreshActivities: FetchRecords, PersistRecords, PublishIngested
//
// # Client Setup
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "default",
//	    TaskQueue: "materials-aggregator-refresh",
//	})
//	rc := temporal.NewRefreshClient(c, cfg)
//	id, err := rc.StartRefresh(ctx, []domain.RecordKind{domain.KindNews}, "", 10)
//
// # Scheduling
//
// EnsureSchedule creates (or retunes) a Temporal schedule that starts
// RefreshWorkflow every interval and skips a run while the previous one is
// still in flight.
//
// # Error Handling
//
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // a run with the same ID is in flight
//	}
package temporal
