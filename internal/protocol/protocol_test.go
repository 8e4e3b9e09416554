package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTripsThroughJSON(t *testing.T) {
	req := Request{ID: "1", Command: CmdExecute, Code: "x = 1", Mode: ModeAdmin}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got Request
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Command, got.Command)
	assert.Equal(t, req.Code, got.Code)
	assert.Equal(t, req.Mode, got.Mode)
}

func TestFailureBuildsAnUnsuccessfulResponse(t *testing.T) {
	resp := Failure("42", KindTimeout, "took too long")
	assert.Equal(t, "42", resp.ID)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindTimeout, resp.Error.Kind)
	assert.Equal(t, "took too long", resp.Error.Message)
}

func TestResponseOmitsEmptyOptionalFields(t *testing.T) {
	resp := Response{ID: "1", Success: true, Result: 4}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "error")
	assert.NotContains(t, raw, "stdout")
}
