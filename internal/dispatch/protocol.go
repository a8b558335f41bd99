package dispatch

import "encoding/json"

// Method names accepted by Handle.
const (
	MethodOpenFileManager   = "open_file_manager"
	MethodOpenLauncher      = "open_launcher"
	MethodOpenPhoneSettings = "open_phone_settings"
	MethodSilenceInstall    = "silence_install"
	MethodCommonInstall     = "common_install"
	MethodCheckRoot         = "check_root"
	MethodHistory           = "history"
	MethodStatus            = "status"
)

// Methods lists every method in the order clients usually present them.
var Methods = []string{
	MethodOpenFileManager,
	MethodOpenLauncher,
	MethodOpenPhoneSettings,
	MethodSilenceInstall,
	MethodCommonInstall,
	MethodCheckRoot,
	MethodHistory,
	MethodStatus,
}

// Argument keys understood by the install and history methods.
const (
	ArgPath   = "path"
	ArgURL    = "url"
	ArgSHA256 = "sha256"
	ArgLimit  = "limit"
)

// ErrNotImplemented is the error text for unknown methods.
const ErrNotImplemented = "not implemented"

// Request is one method invocation. It is the wire envelope for both the
// Unix socket and NATS transports.
type Request struct {
	Method string            `json:"method"`
	Args   map[string]string `json:"args,omitempty"`
}

// Response is the reply to a Request.
//
// Success reports whether the method ran; Result carries the boolean outcome
// of silence_install and check_root. Message holds user-facing text such as
// the notices produced by common_install.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Result  *bool           `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Bool returns the boolean result, false when absent.
func (r *Response) Bool() bool {
	return r.Result != nil && *r.Result
}
