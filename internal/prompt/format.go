package prompt

import (
	"fmt"
	"strings"
)

// severityLevels are the severity values agents may assign, strongest first.
var severityLevels = []string{"critical", "high", "medium", "low", "info"}

// findingCategories are the suggested finding categories.
var findingCategories = []string{"bug", "security", "performance", "style", "maintainability"}

// outputSchema is the JSON document shape agents must emit.
const outputSchema = `{
  "summary": "One paragraph summarizing the overall review",
  "findings": [
    {
      "file": "path/to/file.go",
      "line": 42,
      "severity": "high",
      "category": "bug",
      "message": "Description of the issue",
      "suggestion": "How to fix it (optional)"
    }
  ]
}`

// FormatInstructionBuilder builds output format instructions for agent prompts
type FormatInstructionBuilder struct{}

// NewFormatInstructionBuilder creates a new FormatInstructionBuilder
func NewFormatInstructionBuilder() *FormatInstructionBuilder {
	return &FormatInstructionBuilder{}
}

// Build generates the output format instructions.
// language is the output language instruction (empty for default).
func (b *FormatInstructionBuilder) Build(language string) string {
	var sb strings.Builder

	sb.WriteString("\n\n## Output Format\n\n")
	sb.WriteString("Please provide your response in the following **JSON format**:\n\n")
	sb.WriteString("```json\n")
	sb.WriteString(outputSchema)
	sb.WriteString("\n```\n\n")

	sb.WriteString("Field rules:\n")
	sb.WriteString(fmt.Sprintf("- **severity**: one of %s\n", strings.Join(severityLevels, ", ")))
	sb.WriteString(fmt.Sprintf("- **category**: one of %s\n", strings.Join(findingCategories, ", ")))
	sb.WriteString("- **line**: line number in the new file version, 0 if not applicable\n")
	sb.WriteString("- **findings**: empty array when no issues are found\n\n")

	sb.WriteString("**IMPORTANT:**\n")
	sb.WriteString("- Your response MUST be valid JSON that strictly follows this structure.\n")
	sb.WriteString("- Do not include any text before or after the JSON object.\n")
	sb.WriteString("- Ensure all required fields are present.\n")

	// Add language instruction if specified
	if language != "" {
		sb.WriteString(fmt.Sprintf("\nThe summary, message and suggestion content MUST be in %s.\n", language))
		sb.WriteString("Keep the JSON field names in English.\n")
	}

	return sb.String()
}
