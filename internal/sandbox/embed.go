// Package sandbox carries the in-worker Bridge as an embedded Python script.
// internal/worker writes it to a temp file once per spawned child, the way
// mrdon-cleared's internal/sandbox.NewBridge embeds and stages bridge.py.
package sandbox

import _ "embed"

//go:embed bridge.py
var BridgeScript []byte
