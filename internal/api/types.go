package api

import "github.com/pyhostd/pyhostd/internal/protocol"

// StandardResponse wraps all API responses for a consistent envelope, the
// way GonzoDMX's internal/api.StandardResponse does for rag-anywhere.
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Kind    protocol.ErrorKind `json:"kind,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ExecRequest is the body of POST /api/v1/exec.
type ExecRequest struct {
	Code      string         `json:"code"`
	Variables map[string]any `json:"variables,omitempty"`
}

// EvalRequest is the body of POST /api/v1/eval.
type EvalRequest struct {
	Expression string         `json:"expression"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// CallModuleRequest is the body of POST /api/v1/call-module.
type CallModuleRequest struct {
	Module   string `json:"module"`
	Function string `json:"function"`
	Args     []any  `json:"args,omitempty"`
}

// CheckSyntaxRequest is the body of POST /api/v1/check-syntax.
type CheckSyntaxRequest struct {
	Code string `json:"code"`
}

// CompletionsRequest is the body of POST /api/v1/completions.
type CompletionsRequest struct {
	Code   string `json:"code"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// ExecResult is the success payload shared by exec/eval/call-module/call-script.
type ExecResult struct {
	Result any    `json:"result"`
	Stdout string `json:"stdout"`
}

// SaveScriptRequest is the body of POST /api/v1/scripts.
type SaveScriptRequest struct {
	Name        string `json:"name"`
	Folder      string `json:"folder,omitempty"`
	Code        string `json:"code"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
}

// CallScriptRequest is the body of POST /api/v1/scripts/{name}/call.
type CallScriptRequest struct {
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// RenameScriptRequest is the body of POST /api/v1/scripts/{name}/rename.
type RenameScriptRequest struct {
	NewName string `json:"new_name"`
}

// MoveScriptRequest is the body of POST /api/v1/scripts/{name}/move.
type MoveScriptRequest struct {
	Folder string `json:"folder"`
}

// PoolStatsResponse is the body of GET /api/v1/pool-stats.
type PoolStatsResponse struct {
	Size      int `json:"size"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
	Unhealthy int `json:"unhealthy"`
	Waiting   int `json:"waiting"`
	Restarts  int `json:"restarts"`
}
