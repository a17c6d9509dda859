package kernel

import "github.com/danmuck/vkernel/internal/protocol"

// kernelInfoContent is the kernel_info_reply payload advertised to front
// ends on connection.
func kernelInfoContent() map[string]any {
	return map[string]any{
		"status":                 "ok",
		"protocol_version":       protocol.Version,
		"implementation":         "vkernel",
		"implementation_version": "0.1.0",
		"language_info": map[string]any{
			"name":            "v",
			"version":         "0.4",
			"mimetype":        "text/x-vlang",
			"file_extension":  ".v",
			"pygments_lexer":  "v",
			"codemirror_mode": "clike",
		},
		"banner": "V kernel — stateful notebook execution for the V language",
		"help_links": []map[string]any{
			{"text": "V Documentation", "url": "https://docs.vlang.io/"},
		},
	}
}
