// Package generation orchestrates LLM calls that turn retrieved
// documentation into structured test cases and Selenium scripts.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/extraction"
	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

var tracer = otel.Tracer("qaforge.generation")

// ErrGeneration indicates the LLM call or response parsing failed. Callers
// treat this as a degraded result (empty list), never a crash.
var ErrGeneration = errors.New("generation failed")

// TestCase is one generated test case grounded in source documents.
type TestCase struct {
	TestID         string   `json:"test_id"`
	Feature        string   `json:"feature"`
	TestScenario   string   `json:"test_scenario"`
	ExpectedResult string   `json:"expected_result"`
	GroundedIn     []string `json:"grounded_in"`
}

// Retriever supplies documentation context for prompts.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.SearchResult, error)
}

// chatClient is the subset of the OpenAI client the generator uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds generator configuration.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string `koanf:"api_key"`
	// BaseURL overrides the OpenAI endpoint (for compatible servers).
	BaseURL string `koanf:"base_url"`
	// Model is the chat model.
	// Default: "gpt-3.5-turbo"
	Model string `koanf:"model"`
	// ScriptContextK is the context size for script generation.
	// Default: 3
	ScriptContextK int `koanf:"script_context_k"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-3.5-turbo"
	}
	if c.ScriptContextK == 0 {
		c.ScriptContextK = 3
	}
}

// Generator produces test cases and Selenium scripts over retrieved context.
type Generator struct {
	client    chatClient
	retriever Retriever
	prompts   PromptBuilder
	config    Config
	logger    *zap.Logger
}

// NewGenerator creates a Generator backed by the OpenAI API.
func NewGenerator(cfg Config, retriever Retriever, logger *zap.Logger) (*Generator, error) {
	cfg.ApplyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key required for generation")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:    openai.NewClientWithConfig(clientCfg),
		retriever: retriever,
		config:    cfg,
		logger:    logger,
	}, nil
}

// newGeneratorWithClient is used by tests to inject a fake chat client.
func newGeneratorWithClient(cfg Config, client chatClient, retriever Retriever, logger *zap.Logger) *Generator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:    client,
		retriever: retriever,
		config:    cfg,
		logger:    logger,
	}
}

// GenerateTestCases retrieves documentation context for the query and asks
// the LLM for grounded test cases. No context means no test cases; LLM or
// parse failures return ErrGeneration with an empty list.
func (g *Generator) GenerateTestCases(ctx context.Context, query string) ([]TestCase, error) {
	ctx, span := tracer.Start(ctx, "Generator.GenerateTestCases")
	defer span.End()

	ctxChunks, err := g.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	if len(ctxChunks) == 0 {
		g.logger.Warn("no context retrieved for query, returning no test cases", zap.String("query", query))
		return []TestCase{}, nil
	}
	span.SetAttributes(attribute.Int("context_chunks", len(ctxChunks)))

	prompt := g.prompts.BuildTestGenerationPrompt(query, ctxChunks)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a QA testing expert that generates structured test cases."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("test case generation call failed", zap.Error(err))
		return []TestCase{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return []TestCase{}, fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	content := stripMarkdownFences(resp.Choices[0].Message.Content)

	var cases []TestCase
	if err := json.Unmarshal([]byte(content), &cases); err != nil {
		span.RecordError(err)
		g.logger.Error("failed to parse generated test cases", zap.Error(err))
		return []TestCase{}, fmt.Errorf("%w: parsing response: %v", ErrGeneration, err)
	}

	for i := range cases {
		if cases[i].TestID == "" {
			cases[i].TestID = fmt.Sprintf("TC-%03d", i+1)
		}
		if cases[i].GroundedIn == nil {
			cases[i].GroundedIn = []string{}
		}
	}

	span.SetAttributes(attribute.Int("test_cases", len(cases)))
	span.SetStatus(codes.Ok, "success")
	g.logger.Info("generated test cases",
		zap.String("query", query),
		zap.Int("count", len(cases)),
	)
	return cases, nil
}

// GenerateScript generates a Python Selenium script for a test case.
// htmlContent shorter than 50 bytes is treated as absent and the prompt
// asks for a generic template with placeholder selectors.
func (g *Generator) GenerateScript(ctx context.Context, tc TestCase, htmlContent string) (string, error) {
	ctx, span := tracer.Start(ctx, "Generator.GenerateScript")
	defer span.End()
	span.SetAttributes(attribute.String("test_id", tc.TestID))

	hasHTML := len(htmlContent) > 50
	if !hasHTML {
		htmlContent = ""
	}

	ctxChunks, err := g.retriever.Retrieve(ctx, tc.Feature+" "+tc.TestScenario, g.config.ScriptContextK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	prompt := g.prompts.BuildScriptGenerationPrompt(tc, htmlContent, ctxChunks)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a Selenium automation expert that generates executable Python scripts. If HTML is not provided, generate a generic template with placeholder selectors."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.5,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("script generation call failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	script := stripMarkdownFences(resp.Choices[0].Message.Content)

	span.SetStatus(codes.Ok, "success")
	g.logger.Info("generated selenium script",
		zap.String("test_id", tc.TestID),
		zap.Int("script_len", len(script)),
	)
	return script, nil
}

// byIDPattern and byNamePattern match Selenium locator usage in generated
// Python scripts.
var (
	byIDPattern   = regexp.MustCompile(`By\.ID,\s*["']([^"']+)["']`)
	byNamePattern = regexp.MustCompile(`By\.NAME,\s*["']([^"']+)["']`)
)

// ValidateSelectors reports whether every By.ID and By.NAME locator in the
// script exists in the parsed HTML selector inventory.
func ValidateSelectors(script string, available extraction.Selectors) bool {
	availableIDs := make(map[string]bool, len(available.IDs))
	for _, id := range available.IDs {
		availableIDs[id] = true
	}
	availableNames := make(map[string]bool, len(available.Names))
	for _, name := range available.Names {
		availableNames[name] = true
	}

	for _, m := range byIDPattern.FindAllStringSubmatch(script, -1) {
		if !availableIDs[m[1]] {
			return false
		}
	}
	for _, m := range byNamePattern.FindAllStringSubmatch(script, -1) {
		if !availableNames[m[1]] {
			return false
		}
	}
	return true
}

// stripMarkdownFences removes a surrounding ``` block, with an optional
// language tag, from LLM output.
func stripMarkdownFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	// Drop a language tag on the first line (json, python, ...)
	if idx := strings.Index(content, "\n"); idx >= 0 {
		first := strings.TrimSpace(content[:idx])
		if first != "" && !strings.ContainsAny(first, "[{#") {
			content = content[idx+1:]
		}
	}
	return strings.TrimSpace(content)
}
