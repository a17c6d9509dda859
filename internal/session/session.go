package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Session is the process-wide accumulated state across cell executions.
// The shell loop mutates it and the control loop reads it concurrently,
// so every accessor takes the mutex.
type Session struct {
	mu             sync.Mutex
	declarations   []string
	statements     []string
	executionCount int
	workDir        string
}

// New creates a session with an empty accumulation and a private workspace
// directory for synthesized cell files. An empty root uses the OS temp dir.
func New(root string) (*Session, error) {
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	workDir := filepath.Join(root, "vkernel-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, fmt.Errorf("session: workspace create failed: %w", err)
	}
	return &Session{workDir: workDir}, nil
}

// Close removes the session workspace. Session state is never persisted.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workDir == "" {
		return nil
	}
	err := os.RemoveAll(s.workDir)
	s.workDir = ""
	return err
}

// NextExecutionCount increments and returns the counter. It runs before a
// request is processed, so failed executions consume a count too.
func (s *Session) NextExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionCount++
	return s.executionCount
}

// ExecutionCount returns the current counter without advancing it.
func (s *Session) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executionCount
}

// Accumulate appends fragments in insertion order. Redeclaration is not
// deduplicated; conflicts surface as compiler errors on the next run.
func (s *Session) Accumulate(fragments []Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, frag := range fragments {
		switch frag.Kind {
		case KindDeclaration:
			s.declarations = append(s.declarations, frag.Source)
		case KindStatement:
			s.statements = append(s.statements, frag.Source)
		}
	}
}

// Synthesize renders the complete program: module clause, hoisted imports,
// declarations in accumulation order, then an entry point re-running every
// accumulated statement. Re-running prior statements is the mechanism by
// which state survives between cells; it must not be optimized away.
func (s *Session) Synthesize() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var imports, decls []string
	for _, decl := range s.declarations {
		if strings.HasPrefix(strings.TrimSpace(decl), "import ") {
			imports = append(imports, decl)
		} else {
			decls = append(decls, decl)
		}
	}

	var out strings.Builder
	out.WriteString("module main\n\n")

	for _, imp := range imports {
		out.WriteString(imp)
		out.WriteByte('\n')
	}
	if len(imports) > 0 {
		out.WriteByte('\n')
	}

	for _, decl := range decls {
		out.WriteString(decl)
		out.WriteString("\n\n")
	}

	if len(s.statements) > 0 {
		out.WriteString("fn main() {\n")
		for _, stmt := range s.statements {
			for _, line := range strings.Split(stmt, "\n") {
				out.WriteByte('\t')
				out.WriteString(line)
				out.WriteByte('\n')
			}
		}
		out.WriteString("}\n")
	}
	return out.String()
}

// WriteCell stores synthesized source as cell_N.v inside the workspace and
// returns the file path.
func (s *Session) WriteCell(count int, source string) (string, error) {
	s.mu.Lock()
	workDir := s.workDir
	s.mu.Unlock()
	if workDir == "" {
		return "", fmt.Errorf("session: workspace closed")
	}
	path := filepath.Join(workDir, fmt.Sprintf("cell_%d.v", count))
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("session: cell write failed: %w", err)
	}
	return path, nil
}
