package generation

import (
	"fmt"
	"strings"

	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

// maxHTMLPromptBytes caps how much raw HTML goes into the script prompt.
const maxHTMLPromptBytes = 2000

// PromptBuilder assembles the LLM prompts for test-case and script generation.
type PromptBuilder struct{}

// BuildTestGenerationPrompt constructs the test case generation prompt from
// retrieved documentation chunks and the user query.
func (PromptBuilder) BuildTestGenerationPrompt(query string, context []vectorstore.SearchResult) string {
	var b strings.Builder
	for i, chunk := range context {
		if i > 0 {
			b.WriteString("\n\n")
		}
		filename := "unknown"
		if v, ok := chunk.Metadata["filename"].(string); ok && v != "" {
			filename = v
		}
		fmt.Fprintf(&b, "Document: %s\n%s", filename, chunk.Content)
	}

	return fmt.Sprintf(`You are a QA testing expert. Based on the following documentation, generate test cases for the user's query.

DOCUMENTATION:
%s

USER QUERY: %s

Generate test cases in the following JSON format:
[
  {
    "test_id": "TC-001",
    "feature": "Feature name",
    "test_scenario": "Detailed test scenario",
    "expected_result": "Expected outcome",
    "grounded_in": ["filename1.md", "filename2.txt"]
  }
]

Requirements:
- Generate 3-5 relevant test cases
- Each test case must reference source documents in "grounded_in"
- Only use information from the provided documentation
- Be specific and actionable
- Include both positive and negative test scenarios where applicable

Return ONLY the JSON array, no additional text.`, b.String(), query)
}

// BuildScriptGenerationPrompt constructs the Selenium script generation
// prompt from a test case, the page HTML and retrieved context.
func (PromptBuilder) BuildScriptGenerationPrompt(tc TestCase, html string, context []vectorstore.SearchResult) string {
	parts := make([]string, len(context))
	for i, chunk := range context {
		parts[i] = chunk.Content
	}

	if len(html) > maxHTMLPromptBytes {
		html = html[:maxHTMLPromptBytes]
	}

	return fmt.Sprintf(`You are a Selenium automation expert. Generate a Python Selenium script for the following test case.

TEST CASE:
- ID: %s
- Feature: %s
- Scenario: %s
- Expected Result: %s

HTML STRUCTURE:
%s

ADDITIONAL CONTEXT:
%s

Generate a complete, executable Python Selenium script that:
1. Uses correct element selectors from the HTML (prefer By.ID, then By.NAME, then By.CSS_SELECTOR)
2. Includes all necessary imports
3. Sets up the WebDriver
4. Implements the test scenario
5. Includes assertions for the expected result
6. Has proper error handling
7. Closes the driver at the end

Return ONLY the Python code, no markdown formatting or explanations.`,
		orDefault(tc.TestID), orDefault(tc.Feature), orDefault(tc.TestScenario), orDefault(tc.ExpectedResult),
		html, strings.Join(parts, "\n\n"))
}

func orDefault(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
