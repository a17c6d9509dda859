package engine

// Status discriminates the three terminal outcomes of one execution.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusCompileError Status = "compile_error"
	StatusRuntimeError Status = "runtime_error"
)

// Outcome is the result of running one cell. Diagnostics carries compiler
// output verbatim for compile errors; Stderr carries runtime error output.
type Outcome struct {
	Status         Status
	Stdout         string
	Stderr         string
	Diagnostics    string
	ExitCode       int32
	ExecutionCount int
}

// Failed reports whether the outcome maps to an execute_reply error status.
func (o Outcome) Failed() bool {
	return o.Status != StatusSuccess
}

// Ename is the protocol error name published on iopub for failed outcomes.
func (o Outcome) Ename() string {
	if o.Status == StatusCompileError {
		return "CompileError"
	}
	return "RuntimeError"
}

// Evalue is the protocol error value: the diagnostic or stderr text.
func (o Outcome) Evalue() string {
	if o.Status == StatusCompileError {
		return o.Diagnostics
	}
	return o.Stderr
}

// Traceback renders the error payload line list published on iopub.
func (o Outcome) Traceback() []string {
	text := o.Evalue()
	if text == "" {
		return []string{}
	}
	return splitLines(text)
}
