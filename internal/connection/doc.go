// Package connection loads the runtime inputs of the kernel process: the
// JSON connection descriptor written by the front end and the optional
// TOML kernel configuration.
package connection
