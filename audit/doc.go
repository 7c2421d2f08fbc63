// Package audit delivers authentication events to a pluggable sink
// without blocking the flows that emit them.
//
// Events pass through a buffered dispatcher running on its own
// goroutine. With DropIfFull set the dispatcher sheds load instead of
// stalling logins; dropped events are counted and observable through
// Dropped.
package audit
