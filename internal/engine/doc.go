// Package engine turns one cell of submitted source into exactly one
// terminal outcome: it classifies the fragment, folds it into the session
// accumulation, synthesizes the full program, and runs the V toolchain as
// a child process with captured output.
package engine
