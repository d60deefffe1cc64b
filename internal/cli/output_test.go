package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/livefeed"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success("ignored in json", map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("Journey ended", nil))
	assert.Equal(t, "Journey ended\n", buf.String())
}

func TestOutputFormatter_Result(t *testing.T) {
	res := livefeed.Result{Outcome: livefeed.OutcomePublished, Text: "Successfully published", Channels: 2}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Result(res))
	assert.JSONEq(t, `{"status":"ok","data":{"outcome":"published","text":"Successfully published","channels":2}}`, buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Result(res))
	assert.Equal(t, "Successfully published\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(CodeUserInput, "no trip to undo", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUserInput, resp.Error.Code)
	assert.Equal(t, "no trip to undo", resp.Error.Message)
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error(CodeCommand, "bad config", "line 3"))
	assert.Equal(t, "Error [E_COMMAND]: bad config\nDetails: line 3\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "outer", errors.New("inner"))
	assert.Equal(t, "outer: inner", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestOperationError(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &OutputFormatter{Format: "text", Writer: buf}

	err := operationError(out, "undo", &livefeed.UserInputError{Message: "no trip to undo"})
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, livefeed.IsUserInputError(err))
	assert.Equal(t, "Error [E_INPUT]: no trip to undo\n", buf.String())

	buf.Reset()
	err = operationError(out, "undo", errors.New("disk full"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, buf.String())
}
