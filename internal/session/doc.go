// Package session owns the accumulated program state of one kernel
// lifetime: classified cell fragments, the execution counter, and the
// deterministic synthesis of a complete V source file per execution.
package session
