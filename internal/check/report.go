package check

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Report collects check results across the three wizard phases: files,
// configuration validation and agent availability.
type Report struct {
	FileResults       []FileCheckResult
	ValidationResults []ValidationResult
	AgentResults      []AgentValidationResult
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		FileResults:       []FileCheckResult{},
		ValidationResults: []ValidationResult{},
		AgentResults:      []AgentValidationResult{},
	}
}

func (r *Report) AddFileResult(result FileCheckResult) { r.FileResults = append(r.FileResults, result) }

func (r *Report) AddValidationResult(result ValidationResult) {
	r.ValidationResults = append(r.ValidationResults, result)
}

func (r *Report) AddAgentResult(result AgentValidationResult) {
	r.AgentResults = append(r.AgentResults, result)
}

// Print renders the separator and the final summary line.
func (r *Report) Print() {
	r.printSeparator()
	r.printSummary(r.calculateSummary())
}

// ReportSummary aggregates the counts shown in the summary line.
type ReportSummary struct {
	TotalFiles   int
	FilesExist   int
	FilesCreated int
	FilesMissing int

	TotalValidations int
	ValidationsValid int
	ValidationErrors int

	TotalAgents int
	AgentsReady int
	AgentErrors int

	HasErrors   bool
	HasWarnings bool
}

func (r *Report) calculateSummary() ReportSummary {
	var s ReportSummary
	s.tallyFiles(r.FileResults)
	s.tallyValidations(r.ValidationResults)
	s.tallyAgents(r.AgentResults)
	return s
}

func (s *ReportSummary) tallyFiles(results []FileCheckResult) {
	s.TotalFiles = len(results)
	for _, r := range results {
		switch {
		case r.Error != nil:
			s.HasErrors = true
		case r.Created:
			s.FilesCreated++
			s.FilesExist++
		case r.Exists:
			s.FilesExist++
		default:
			s.FilesMissing++
		}
	}
}

func (s *ReportSummary) tallyValidations(results []ValidationResult) {
	s.TotalValidations = len(results)
	for _, r := range results {
		switch {
		case r.Valid:
			s.ValidationsValid++
		default:
			s.ValidationErrors++
			if r.Error != nil {
				s.HasErrors = true
			}
		}
		if len(r.Warnings) > 0 {
			s.HasWarnings = true
		}
	}
}

func (s *ReportSummary) tallyAgents(results []AgentValidationResult) {
	s.TotalAgents = len(results)
	for _, r := range results {
		switch {
		case r.Error != nil:
			s.AgentErrors++
			s.HasErrors = true
		case !r.CLIAvailable:
			// The server starts without the CLI, reviews fail until it
			// is installed
			s.HasWarnings = true
		default:
			s.AgentsReady++
		}
	}
}

func (r *Report) printSeparator() {
	fmt.Println(separatorStyle.Render(strings.Repeat("─", 50)))
}

func (r *Report) printSummary(s ReportSummary) {
	switch {
	case s.HasErrors:
		boldRed.Print("✗ Check completed")
	case s.HasWarnings || s.FilesMissing > 0:
		boldYellow.Print("⚠ Check completed")
	default:
		boldGreen.Print("✓ Check completed")
	}

	var details []string
	detail := func(n int, what string) {
		if n > 0 {
			details = append(details, fmt.Sprintf("%d %s", n, what))
		}
	}
	detail(s.FilesCreated, "file(s) created")
	detail(s.FilesMissing, "file(s) missing")
	detail(s.ValidationErrors, "validation error(s)")
	detail(s.AgentErrors, "agent error(s)")

	if len(details) == 0 {
		fmt.Println(" - All checks passed")
		return
	}
	fmt.Printf(" (%s)\n", strings.Join(details, ", "))
}

// reportBox frames the detailed report heading.
var reportBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("12")).
	Padding(0, 2).
	Width(50).
	Align(lipgloss.Center)

// PrintDetailedReport renders every section followed by the summary.
func (r *Report) PrintDetailedReport() {
	fmt.Println(reportBox.Render(headingStyle.Render("ReviewPilot Environment Check Report")))
	fmt.Println()

	r.printFileSection()
	fmt.Println()

	r.printValidationSection()
	fmt.Println()

	if len(r.AgentResults) > 0 {
		r.printAgentSection()
		fmt.Println()
	}

	r.Print()
}

func (r *Report) printFileSection() {
	fmt.Println(sectionStyle.Render("📁 File Check"))
	for _, result := range r.FileResults {
		printFileResult(result)
	}
}

func (r *Report) printValidationSection() {
	fmt.Println(sectionStyle.Render("📝 Configuration Validation"))
	for _, result := range r.ValidationResults {
		printValidationResult(result)
	}
}

func (r *Report) printAgentSection() {
	fmt.Println(sectionStyle.Render("🤖 Agent Availability"))
	for _, result := range r.AgentResults {
		printAgentResult(result)
	}
}

// printAgentResult prints the one-line status of an agent check.
func printAgentResult(r AgentValidationResult) {
	switch {
	case r.Error != nil:
		red.Printf("  ✗ %s: %v\n", r.AgentName, r.Error)
	case !r.CLIAvailable:
		yellow.Printf("  ⚠ %s: CLI not found in PATH\n", r.AgentName)
	default:
		key := "not set"
		if r.APIKeySet {
			key = "configured"
		}
		green.Printf("  ✓ %s (CLI available, API key: %s)\n", r.AgentName, key)
	}
}
