package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/generation"
	"github.com/silvanlabs/qaforge/internal/ingest"
)

// handleUpload accepts a multipart batch of source documents, stores them in
// a fresh upload session and makes it the active batch.
func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}

	readers := make(map[string]io.Reader, len(fileHeaders))
	order := make([]string, 0, len(fileHeaders))
	var open []io.Closer
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()

	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("opening %s: %v", fh.Filename, err))
		}
		open = append(open, f)
		readers[fh.Filename] = f
		order = append(order, fh.Filename)
	}

	sessionName, _, err := s.sessions.StoreUploads(readers, order)
	if err != nil {
		s.logger.Error("storing uploads failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Status:  "success",
		Message: fmt.Sprintf("Uploaded %d files to session %s", len(order), sessionName),
		Files:   order,
		Session: sessionName,
	})
}

// handleHTML accepts pasted HTML content as the active page structure.
func (s *Server) handleHTML(c echo.Context) error {
	var req HTMLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	s.sessions.SetHTMLContent(req.Content)

	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "HTML content received",
	})
}

// handleBuildKnowledgeBase clears the store and ingests the active upload
// batch as the new knowledge base.
func (s *Server) handleBuildKnowledgeBase(c echo.Context) error {
	paths := s.sessions.UploadedFiles()
	if len(paths) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, ingest.ErrNoDocuments.Error())
	}

	extracted := s.extractor.ExtractAll(paths)
	docs := make([]ingest.Document, len(extracted))
	for i, d := range extracted {
		docs[i] = ingest.Document{Text: d.Text, Metadata: d.Metadata}
	}

	report, err := s.pipeline.Rebuild(c.Request().Context(), docs)
	if err != nil {
		if errors.Is(err, ingest.ErrNoDocuments) {
			return echo.NewHTTPError(http.StatusBadRequest, ingest.ErrNoDocuments.Error())
		}
		s.logger.Error("knowledge base build failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, report)
}

// handleClear empties the store and drops the in-memory session state.
func (s *Server) handleClear(c echo.Context) error {
	if err := s.store.DeleteAll(c.Request().Context()); err != nil {
		s.logger.Error("clearing store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.sessions.Clear()

	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "Current session and knowledge base cleared",
	})
}

// handleGenerateTests generates test cases for a query. Generation failures
// degrade to an empty list, never a 5xx.
func (s *Server) handleGenerateTests(c echo.Context) error {
	var req TestGenerationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if s.generator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation disabled: no API key configured")
	}

	if err := s.sessions.LogQuery(req.Query); err != nil {
		s.logger.Warn("failed to log query", zap.Error(err))
	}

	testCases, err := s.generator.GenerateTestCases(c.Request().Context(), req.Query)
	if err != nil {
		if errors.Is(err, generation.ErrGeneration) {
			s.logger.Warn("test generation degraded", zap.Error(err))
			return c.JSON(http.StatusOK, TestGenerationResponse{
				Status:    "warning",
				Message:   "Test generation failed; please retry.",
				TestCases: []generation.TestCase{},
			})
		}
		s.logger.Error("test generation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if len(testCases) == 0 {
		return c.JSON(http.StatusOK, TestGenerationResponse{
			Status:    "warning",
			Message:   "No relevant context found. Please upload more documents.",
			TestCases: []generation.TestCase{},
		})
	}

	if err := s.sessions.SaveTestCases(req.Query, testCases); err != nil {
		s.logger.Warn("failed to save test cases", zap.Error(err))
	}

	return c.JSON(http.StatusOK, TestGenerationResponse{
		Status:    "success",
		TestCases: testCases,
	})
}

// handleGenerateScript generates a Selenium script for a test case and
// stores it in the current script session.
func (s *Server) handleGenerateScript(c echo.Context) error {
	var req ScriptGenerationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if s.generator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation disabled: no API key configured")
	}

	htmlContent := s.sessions.HTMLContent()
	if htmlContent == "" {
		htmlContent = "<html><body></body></html>"
	}

	script, err := s.generator.GenerateScript(c.Request().Context(), req.TestCase, htmlContent)
	if err != nil {
		if errors.Is(err, generation.ErrGeneration) {
			s.logger.Warn("script generation degraded", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "script generation failed; please retry")
		}
		s.logger.Error("script generation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	sessionName, err := s.sessions.SaveScript(
		req.TestCase.TestID,
		req.TestCase.Feature,
		req.TestCase.TestScenario,
		req.TestCase.ExpectedResult,
		script,
	)
	if err != nil {
		s.logger.Error("saving script failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, ScriptGenerationResponse{
		Status:  "success",
		Script:  script,
		Session: sessionName,
	})
}

// handleResetScriptSession starts a new script batch.
func (s *Server) handleResetScriptSession(c echo.Context) error {
	s.sessions.ResetScriptSession()
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "Script session reset. Next generation will create a new session.",
	})
}

// handleUploadHistory lists all upload sessions, newest first.
func (s *Server) handleUploadHistory(c echo.Context) error {
	sessions, err := s.sessions.UploadHistory()
	if err != nil {
		s.logger.Error("listing upload history failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, UploadHistoryResponse{Status: "success", Sessions: sessions})
}

// handleScriptHistory lists all script sessions, newest first.
func (s *Server) handleScriptHistory(c echo.Context) error {
	sessions, err := s.sessions.ScriptHistory()
	if err != nil {
		s.logger.Error("listing script history failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ScriptHistoryResponse{Status: "success", Sessions: sessions})
}
