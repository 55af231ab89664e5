// Package api serves the dashboard's REST endpoints.
//
// Routes (all GET):
//
//	/api/v1/health                       overall state and per-state counts
//	/api/v1/sources                      every live source with latest values
//	/api/v1/sources/{id}                 one source, with warnings and certificate status
//	/api/v1/sources/{id}/table?tail=N    last N rows of the snapshot
//	/api/v1/sources/{id}/chart.png       PNG line chart of the last rows
//	/api/v1/sources/{id}/history         readings from the SQLite history
//	/api/v1/alerts                       firing and recently resolved alerts
//	/api/v1/snapshot                     full document, also pushed over /ws/stream
//
// Delta values that are NaN (channel missing on one side) are encoded as
// null, since JSON has no NaN.
package api
