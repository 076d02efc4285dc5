package main

import (
	"encoding/json"
	"fmt"
	"os"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

// errorEnvelope is embedded in every command's JSON output so failures
// carry their classification to scripted callers.
type errorEnvelope struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

func envelopeOK() errorEnvelope {
	return errorEnvelope{OK: true}
}

func envelopeFor(err error) errorEnvelope {
	return errorEnvelope{
		OK:            false,
		Error:         err.Error(),
		ErrorCode:     coreerrors.CodeOf(err),
		ErrorCategory: string(coreerrors.CategoryOf(err)),
		Retryable:     coreerrors.RetryableOf(err),
		Hint:          coreerrors.HintOf(err),
	}
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := json.Marshal(output)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

// writeFailure reports a command failure in the requested format and
// maps it to an exit code.
func writeFailure(jsonOutput bool, err error) int {
	exitCode := exitCodeForError(err, exitInternalFailure)
	if jsonOutput {
		return writeJSONOutput(envelopeFor(err), exitCode)
	}
	fmt.Fprintf(os.Stderr, "repotrust: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	return exitCode
}
