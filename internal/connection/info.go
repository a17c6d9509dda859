package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrMissingIP        = errors.New("connection: missing ip")
	ErrMissingTransport = errors.New("connection: missing transport")
	ErrMissingPort      = errors.New("connection: missing channel port")
	ErrBadScheme        = errors.New("connection: unsupported signature scheme")
)

// Info mirrors the connection file the front end writes and passes via argv.
// It supplies the five channel endpoints and the HMAC key.
type Info struct {
	IP              string `json:"ip"`
	Transport       string `json:"transport"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name,omitempty"`
}

// Load reads and validates a connection file.
func Load(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("connection: load failed (%s): %w", path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("connection: parse failed (%s): %w", path, err)
	}
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (i Info) Validate() error {
	if strings.TrimSpace(i.IP) == "" {
		return ErrMissingIP
	}
	if strings.TrimSpace(i.Transport) == "" {
		return ErrMissingTransport
	}
	ports := map[string]int{
		"shell":   i.ShellPort,
		"iopub":   i.IOPubPort,
		"stdin":   i.StdinPort,
		"control": i.ControlPort,
		"hb":      i.HBPort,
	}
	for name, port := range ports {
		if port <= 0 {
			return fmt.Errorf("%w: %s", ErrMissingPort, name)
		}
	}
	scheme := strings.TrimSpace(i.SignatureScheme)
	if scheme != "" && scheme != "hmac-sha256" {
		return fmt.Errorf("%w: %q", ErrBadScheme, i.SignatureScheme)
	}
	return nil
}

// Endpoint renders one channel address, e.g. tcp://127.0.0.1:54321.
func (i Info) Endpoint(port int) string {
	return fmt.Sprintf("%s://%s:%d", i.Transport, i.IP, port)
}
