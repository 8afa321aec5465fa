package generation

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvanlabs/qaforge/internal/extraction"
	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

// fakeChatClient returns a canned completion and records the last request.
type fakeChatClient struct {
	response string
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (c *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.lastReq = req
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: c.response}},
		},
	}, nil
}

// fakeRetriever serves fixed context chunks and records the requested topK.
type fakeRetriever struct {
	results   []vectorstore.SearchResult
	err       error
	lastQuery string
	lastTopK  int
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.SearchResult, error) {
	r.lastQuery = query
	r.lastTopK = topK
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

func docContext() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		{
			ID:       "login.md_0",
			Content:  "The login page requires a username and password.",
			Metadata: map[string]interface{}{"filename": "login.md"},
		},
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "gpt-3.5-turbo", cfg.Model)
	assert.Equal(t, 3, cfg.ScriptContextK)
}

func TestNewGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(Config{}, &fakeRetriever{}, nil)
	assert.Error(t, err)
}

func TestGenerateTestCases(t *testing.T) {
	client := &fakeChatClient{response: `[
  {"test_id": "TC-001", "feature": "Login", "test_scenario": "Valid credentials", "expected_result": "User is logged in", "grounded_in": ["login.md"]},
  {"feature": "Login", "test_scenario": "Wrong password", "expected_result": "Error shown"}
]`}
	retriever := &fakeRetriever{results: docContext()}
	g := newGeneratorWithClient(Config{}, client, retriever, nil)

	cases, err := g.GenerateTestCases(context.Background(), "test the login flow")
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "TC-001", cases[0].TestID)
	assert.Equal(t, []string{"login.md"}, cases[0].GroundedIn)

	// Missing IDs and grounding are backfilled.
	assert.Equal(t, "TC-002", cases[1].TestID)
	assert.Equal(t, []string{}, cases[1].GroundedIn)

	// The prompt carries the retrieved document content and the query.
	prompt := client.lastReq.Messages[1].Content
	assert.Contains(t, prompt, "Document: login.md")
	assert.Contains(t, prompt, "The login page requires a username and password.")
	assert.Contains(t, prompt, "test the login flow")
	assert.InDelta(t, 0.7, client.lastReq.Temperature, 1e-6)
}

func TestGenerateTestCases_FencedResponse(t *testing.T) {
	client := &fakeChatClient{response: "```json\n" +
		`[{"test_id": "TC-001", "feature": "Login", "test_scenario": "s", "expected_result": "r", "grounded_in": []}]` +
		"\n```"}
	g := newGeneratorWithClient(Config{}, client, &fakeRetriever{results: docContext()}, nil)

	cases, err := g.GenerateTestCases(context.Background(), "login")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "TC-001", cases[0].TestID)
}

func TestGenerateTestCases_NoContext(t *testing.T) {
	client := &fakeChatClient{response: "irrelevant"}
	g := newGeneratorWithClient(Config{}, client, &fakeRetriever{}, nil)

	cases, err := g.GenerateTestCases(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, cases)
	// No LLM call happens without context.
	assert.Empty(t, client.lastReq.Messages)
}

func TestGenerateTestCases_LLMFailure(t *testing.T) {
	client := &fakeChatClient{err: errors.New("upstream timeout")}
	g := newGeneratorWithClient(Config{}, client, &fakeRetriever{results: docContext()}, nil)

	cases, err := g.GenerateTestCases(context.Background(), "login")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Empty(t, cases)
}

func TestGenerateTestCases_UnparseableResponse(t *testing.T) {
	client := &fakeChatClient{response: "Sorry, I cannot help with that."}
	g := newGeneratorWithClient(Config{}, client, &fakeRetriever{results: docContext()}, nil)

	cases, err := g.GenerateTestCases(context.Background(), "login")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Empty(t, cases)
}

func TestGenerateTestCases_RetrieverFailure(t *testing.T) {
	g := newGeneratorWithClient(Config{}, &fakeChatClient{}, &fakeRetriever{err: errors.New("store down")}, nil)

	_, err := g.GenerateTestCases(context.Background(), "login")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGeneration)
}

func TestGenerateScript(t *testing.T) {
	client := &fakeChatClient{response: "```python\nfrom selenium import webdriver\n\ndriver = webdriver.Chrome()\n```"}
	retriever := &fakeRetriever{results: docContext()}
	g := newGeneratorWithClient(Config{}, client, retriever, nil)

	tc := TestCase{
		TestID:         "TC-001",
		Feature:        "Login",
		TestScenario:   "Valid credentials",
		ExpectedResult: "Dashboard shown",
	}
	html := "<html><body><form id='login'><input id='username'></form></body></html>"

	script, err := g.GenerateScript(context.Background(), tc, html)
	require.NoError(t, err)

	assert.Equal(t, "from selenium import webdriver\n\ndriver = webdriver.Chrome()", script)
	assert.Equal(t, "Login Valid credentials", retriever.lastQuery)
	assert.Equal(t, 3, retriever.lastTopK)
	assert.InDelta(t, 0.5, client.lastReq.Temperature, 1e-6)
	assert.Contains(t, client.lastReq.Messages[1].Content, "id='username'")
}

func TestGenerateScript_ShortHTMLTreatedAsAbsent(t *testing.T) {
	client := &fakeChatClient{response: "driver = webdriver.Chrome()"}
	g := newGeneratorWithClient(Config{}, client, &fakeRetriever{results: docContext()}, nil)

	_, err := g.GenerateScript(context.Background(), TestCase{TestID: "TC-001"}, "<html></html>")
	require.NoError(t, err)

	// Stub HTML under the threshold is dropped from the prompt.
	assert.NotContains(t, client.lastReq.Messages[1].Content, "<html></html>")
}

func TestGenerateScript_LLMFailure(t *testing.T) {
	client := &fakeChatClient{err: errors.New("rate limited")}
	g := newGeneratorWithClient(Config{}, client, &fakeRetriever{results: docContext()}, nil)

	_, err := g.GenerateScript(context.Background(), TestCase{TestID: "TC-001"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestValidateSelectors(t *testing.T) {
	available := extraction.Selectors{
		IDs:   []string{"username", "password", "submit-btn"},
		Names: []string{"username", "password"},
	}

	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{
			name:   "all selectors exist",
			script: `driver.find_element(By.ID, "username")` + "\n" + `driver.find_element(By.NAME, 'password')`,
			want:   true,
		},
		{
			name:   "unknown id",
			script: `driver.find_element(By.ID, "email")`,
			want:   false,
		},
		{
			name:   "unknown name",
			script: `driver.find_element(By.NAME, "email")`,
			want:   false,
		},
		{
			name:   "no locators",
			script: `print("nothing to validate")`,
			want:   true,
		},
		{
			name:   "other locator strategies ignored",
			script: `driver.find_element(By.XPATH, "//div[@id='whatever']")`,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSelectors(tt.script, available))
		})
	}
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fences",
			input: `[{"a": 1}]`,
			want:  `[{"a": 1}]`,
		},
		{
			name:  "plain fences",
			input: "```\n[1, 2]\n```",
			want:  "[1, 2]",
		},
		{
			name:  "json language tag",
			input: "```json\n[1, 2]\n```",
			want:  "[1, 2]",
		},
		{
			name:  "python language tag",
			input: "```python\nprint('x')\n```",
			want:  "print('x')",
		},
		{
			name:  "surrounding whitespace",
			input: "  ```json\n{\"k\": true}\n```  ",
			want:  `{"k": true}`,
		},
		{
			name:  "fence with content on first line",
			input: "```{\"k\": 1}\n```",
			want:  `{"k": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdownFences(tt.input))
		})
	}
}
