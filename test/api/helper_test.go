//go:build integration

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// TestResponse is a decoded API envelope.
type TestResponse struct {
	Code    int
	Status  string
	Message string
	Error   string
	Kind    string
	Data    json.RawMessage
}

func (r TestResponse) IsSuccess() bool {
	return r.Status == "success"
}

// Decode unmarshals the data member into v.
func (r TestResponse) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v), "data: %s", string(r.Data))
}

func makeRequest(method, path string, body interface{}, token string) TestResponse {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return TestResponse{Status: "error", Message: fmt.Sprintf("Failed to marshal request body: %v", err)}
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return TestResponse{Code: resp.StatusCode, Status: "error", Message: err.Error()}
	}

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Kind    string          `json:"kind"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return TestResponse{
			Code:    resp.StatusCode,
			Status:  "error",
			Message: fmt.Sprintf("Failed to parse response: %v\nRaw response: %s", err, string(raw)),
		}
	}

	return TestResponse{
		Code:    resp.StatusCode,
		Status:  envelope.Status,
		Message: envelope.Message,
		Error:   envelope.Error,
		Kind:    envelope.Kind,
		Data:    envelope.Data,
	}
}

func uuidArray(ids []uuid.UUID) interface{} {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}
