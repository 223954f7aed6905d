// Package reconcile decides, per streamer, whether a live notification
// should exist and drives the Notifier and RoleManager to make it so.
package reconcile

// ZeroStartTime is the placeholder some platforms report for a stream
// without a start time.
const ZeroStartTime = "0001-01-01T00:00:00Z"

// DeriveSessionKey identifies one broadcast. The platform start time is used
// verbatim; without one the key falls back to "live:"+title, so two
// broadcasts with the same title and no start time count as one session.
func DeriveSessionKey(startTime, title string) string {
	if startTime != "" && startTime != ZeroStartTime {
		return startTime
	}
	return "live:" + title
}
