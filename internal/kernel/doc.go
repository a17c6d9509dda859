// Package kernel owns the runtime loop of the process: binding the five
// protocol channels, serving the heartbeat and control planes on their own
// goroutines, and dispatching shell requests sequentially to the execution
// engine while publishing protocol-ordered iopub broadcasts.
package kernel
