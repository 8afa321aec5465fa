package httpapi

import (
	"github.com/silvanlabs/qaforge/internal/generation"
	"github.com/silvanlabs/qaforge/internal/session"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is a generic status/message pair.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UploadResponse is the response body for POST /api/v1/upload.
type UploadResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
	Session string   `json:"session"`
}

// HTMLRequest is the request body for POST /api/v1/html.
type HTMLRequest struct {
	Content string `json:"content"`
}

// TestGenerationRequest is the request body for POST /api/v1/tests.
type TestGenerationRequest struct {
	Query string `json:"query"`
}

// TestGenerationResponse is the response body for POST /api/v1/tests.
type TestGenerationResponse struct {
	Status    string                `json:"status"`
	Message   string                `json:"message,omitempty"`
	TestCases []generation.TestCase `json:"test_cases"`
}

// ScriptGenerationRequest is the request body for POST /api/v1/scripts.
type ScriptGenerationRequest struct {
	TestCase generation.TestCase `json:"test_case"`
}

// ScriptGenerationResponse is the response body for POST /api/v1/scripts.
type ScriptGenerationResponse struct {
	Status  string `json:"status"`
	Script  string `json:"script"`
	Session string `json:"session"`
}

// UploadHistoryResponse is the response body for GET /api/v1/uploads/history.
type UploadHistoryResponse struct {
	Status   string                  `json:"status"`
	Sessions []session.UploadSession `json:"sessions"`
}

// ScriptHistoryResponse is the response body for GET /api/v1/scripts/history.
type ScriptHistoryResponse struct {
	Status   string                  `json:"status"`
	Sessions []session.ScriptSession `json:"sessions"`
}
