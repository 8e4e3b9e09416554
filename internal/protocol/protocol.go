// Package protocol defines the line-framed JSON request/response contract
// between an Executor and its Worker (spec §4.1, §6.1).
package protocol

import "encoding/json"

// Command identifies the verb of a Request.
type Command string

const (
	CmdExecute     Command = "execute"
	CmdEvaluate    Command = "evaluate"
	CmdCallModule  Command = "call_module"
	CmdCallScript  Command = "call_script"
	CmdCheckSyntax Command = "check_syntax"
	CmdCompletions Command = "completions"
	CmdPing        Command = "ping"
	CmdShutdown    Command = "shutdown"
)

// SecurityMode gates which module whitelist the Bridge assembles for a request.
type SecurityMode string

const (
	ModeRestricted SecurityMode = "restricted"
	ModeAdmin      SecurityMode = "admin"
)

// ErrorKind is the stable error taxonomy shared across every layer (spec §7).
type ErrorKind string

const (
	KindSyntaxError       ErrorKind = "SyntaxError"
	KindNameError         ErrorKind = "NameError"
	KindRuntimeError      ErrorKind = "RuntimeError"
	KindTimeout           ErrorKind = "Timeout"
	KindResourceExceeded  ErrorKind = "ResourceExceeded"
	KindSandboxViolation  ErrorKind = "SandboxViolation"
	KindInternalError     ErrorKind = "InternalError"
	KindPoolExhausted     ErrorKind = "PoolExhausted"
	KindWorkerUnavailable ErrorKind = "WorkerUnavailable"
	KindSignatureInvalid  ErrorKind = "SignatureInvalid"
	KindRateLimited       ErrorKind = "RateLimited"
	KindUnauthorized      ErrorKind = "Unauthorized"
	KindForbidden         ErrorKind = "Forbidden"
	KindInvalidInput      ErrorKind = "InvalidInput"
)

// Request is the envelope written to a Worker's stdin, one JSON object per line.
type Request struct {
	ID       string          `json:"id"`
	Command  Command         `json:"command"`
	Mode     SecurityMode    `json:"mode,omitempty"`
	Code     string          `json:"code,omitempty"`
	Expr     string          `json:"expression,omitempty"`
	Module   string          `json:"module,omitempty"`
	Function string          `json:"function,omitempty"`
	Path     string          `json:"path,omitempty"`
	Args     []any           `json:"args,omitempty"`
	Kwargs   map[string]any  `json:"kwargs,omitempty"`
	Vars     map[string]any  `json:"variables,omitempty"`
	Line     int             `json:"line,omitempty"`
	Column   int             `json:"column,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Response is the envelope read from a Worker's stdout, one JSON object per line.
type Response struct {
	ID      string     `json:"id"`
	Success bool       `json:"success"`
	Result  any        `json:"result,omitempty"`
	Stdout  string     `json:"stdout,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the classified failure for an unsuccessful Response.
type ErrorBody struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Traceback  string    `json:"traceback,omitempty"`
	LineNumber int       `json:"line,omitempty"`
	ColumnNum  int       `json:"column,omitempty"`
}

// Failure builds an error Response carrying the given classification.
func Failure(id string, kind ErrorKind, msg string) *Response {
	return &Response{ID: id, Success: false, Error: &ErrorBody{Kind: kind, Message: msg}}
}
