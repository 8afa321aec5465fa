// Package session manages upload and script-generation sessions as
// timestamped directories under a resources root.
package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sessionTimeFormat names session directories, newest sorting last
// lexicographically.
const sessionTimeFormat = "20060102_150405"

// UploadSession describes one upload batch.
type UploadSession struct {
	Session   string   `json:"session"`
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
}

// ScriptSession describes one script-generation batch.
type ScriptSession struct {
	Session     string   `json:"session"`
	Scripts     []string `json:"scripts"`
	ScriptCount int      `json:"script_count"`
}

// Manager owns the resources directory layout:
//
//	<root>/uploads/<timestamp>/...   uploaded source files
//	<root>/queries/queries.txt       append-only query log
//	<root>/queries/test_cases_*.json generated test case snapshots
//	<root>/scripts/<timestamp>/...   generated Selenium scripts
//
// It also tracks the latest upload batch and pasted HTML in memory, which
// the knowledge-base build and script generation consume.
type Manager struct {
	root       string
	uploadsDir string
	queriesDir string
	scriptsDir string
	logger     *zap.Logger

	mu                 sync.Mutex
	uploadedFiles      []string
	htmlContent        string
	currentScriptBatch string
	now                func() time.Time
}

// NewManager creates a Manager and its directory layout.
func NewManager(root string, logger *zap.Logger) (*Manager, error) {
	if root == "" {
		root = "./resources"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		root:       root,
		uploadsDir: filepath.Join(root, "uploads"),
		queriesDir: filepath.Join(root, "queries"),
		scriptsDir: filepath.Join(root, "scripts"),
		logger:     logger,
		now:        time.Now,
	}

	for _, dir := range []string{m.root, m.uploadsDir, m.queriesDir, m.scriptsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating session directory %s: %w", dir, err)
		}
	}

	return m, nil
}

// StoreUploads writes a batch of named readers into a fresh upload session
// and makes it the active batch. HTML file content replaces the stored HTML.
// Returns the session name and stored file paths.
func (m *Manager) StoreUploads(files map[string]io.Reader, order []string) (string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.now().Format(sessionTimeFormat)
	sessionDir := filepath.Join(m.uploadsDir, session)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating upload session %s: %w", session, err)
	}

	m.uploadedFiles = nil
	m.htmlContent = ""

	paths := make([]string, 0, len(order))
	for _, name := range order {
		reader, ok := files[name]
		if !ok {
			continue
		}
		// Uploaded filenames are untrusted; keep only the base name.
		path := filepath.Join(sessionDir, filepath.Base(name))

		out, err := os.Create(path)
		if err != nil {
			return "", nil, fmt.Errorf("creating %s: %w", path, err)
		}
		if _, err := io.Copy(out, reader); err != nil {
			out.Close()
			return "", nil, fmt.Errorf("writing %s: %w", path, err)
		}
		out.Close()

		paths = append(paths, path)
		m.uploadedFiles = append(m.uploadedFiles, path)

		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm") {
			data, err := os.ReadFile(path)
			if err == nil {
				m.htmlContent = string(data)
			}
		}
	}

	m.logger.Info("stored upload session",
		zap.String("session", session),
		zap.Int("files", len(paths)),
	)
	return session, paths, nil
}

// UploadedFiles returns the file paths of the active upload batch.
func (m *Manager) UploadedFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.uploadedFiles))
	copy(out, m.uploadedFiles)
	return out
}

// SetHTMLContent stores pasted HTML as the active page structure.
func (m *Manager) SetHTMLContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.htmlContent = content
}

// HTMLContent returns the active page HTML, or "" when none is stored.
func (m *Manager) HTMLContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.htmlContent
}

// LogQuery appends a query to the queries.txt log.
func (m *Manager) LogQuery(query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(m.queriesDir, "queries.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening query log: %w", err)
	}
	defer f.Close()

	divider := strings.Repeat("=", 60)
	_, err = fmt.Fprintf(f, "\n%s\nQuery Timestamp: %s\n%s\n%s\n",
		divider, m.now().Format("2006-01-02 15:04:05"), divider, query)
	if err != nil {
		return fmt.Errorf("appending query: %w", err)
	}
	return nil
}

// SaveTestCases snapshots generated test cases as a timestamped JSON file.
func (m *Manager) SaveTestCases(query string, testCases interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := map[string]interface{}{
		"query":      query,
		"timestamp":  m.now().Format("2006-01-02 15:04:05"),
		"test_cases": testCases,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling test cases: %w", err)
	}

	path := filepath.Join(m.queriesDir, fmt.Sprintf("test_cases_%s.json", m.now().Format(sessionTimeFormat)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing test cases: %w", err)
	}

	m.logger.Debug("saved test cases", zap.String("path", path))
	return nil
}

// SaveScript writes a generated script into the current script session,
// creating the session on first use. The header records the test case the
// script covers. Returns the session name.
func (m *Manager) SaveScript(testID, feature, scenario, expected, script string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentScriptBatch == "" {
		m.currentScriptBatch = m.now().Format(sessionTimeFormat)
		if err := os.MkdirAll(filepath.Join(m.scriptsDir, m.currentScriptBatch), 0o755); err != nil {
			return "", fmt.Errorf("creating script session: %w", err)
		}
		m.logger.Info("created script session", zap.String("session", m.currentScriptBatch))
	}

	if testID == "" {
		testID = "TC-000"
	}
	path := filepath.Join(m.scriptsDir, m.currentScriptBatch, fmt.Sprintf("script_%s.py", testID))

	var b strings.Builder
	fmt.Fprintf(&b, "# Test Case: %s\n", testID)
	fmt.Fprintf(&b, "# Feature: %s\n", feature)
	fmt.Fprintf(&b, "# Scenario: %s\n", scenario)
	fmt.Fprintf(&b, "# Expected: %s\n\n", expected)
	b.WriteString(script)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing script: %w", err)
	}

	m.logger.Debug("saved script", zap.String("path", path))
	return m.currentScriptBatch, nil
}

// ResetScriptSession ends the current script batch; the next SaveScript
// starts a fresh session directory.
func (m *Manager) ResetScriptSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentScriptBatch = ""
}

// Clear drops the in-memory session state (files, HTML, script batch).
// Stored session directories stay on disk as history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadedFiles = nil
	m.htmlContent = ""
	m.currentScriptBatch = ""
}

// UploadHistory lists all upload sessions, newest first.
func (m *Manager) UploadHistory() ([]UploadSession, error) {
	dirs, err := listSessionDirs(m.uploadsDir)
	if err != nil {
		return nil, err
	}

	sessions := make([]UploadSession, 0, len(dirs))
	for _, dir := range dirs {
		files, err := listFiles(filepath.Join(m.uploadsDir, dir), "")
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, UploadSession{
			Session:   dir,
			Files:     files,
			FileCount: len(files),
		})
	}
	return sessions, nil
}

// ScriptHistory lists all script sessions, newest first.
func (m *Manager) ScriptHistory() ([]ScriptSession, error) {
	dirs, err := listSessionDirs(m.scriptsDir)
	if err != nil {
		return nil, err
	}

	sessions := make([]ScriptSession, 0, len(dirs))
	for _, dir := range dirs {
		scripts, err := listFiles(filepath.Join(m.scriptsDir, dir), ".py")
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ScriptSession{
			Session:     dir,
			Scripts:     scripts,
			ScriptCount: len(scripts),
		})
	}
	return sessions, nil
}

// listSessionDirs returns session directory names sorted newest first.
func listSessionDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}

// listFiles returns file names in dir, optionally filtered by extension.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext != "" && !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}
