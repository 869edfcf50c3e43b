package output

import "strings"

// BuildMetadataString renders the italic attribution line appended to
// posted comments, e.g. "*Agent: cursor || Model: composer-1*".
// Disabled or blank entries are dropped; with nothing left it returns "".
func BuildMetadataString(opts *MarkdownOptions, agentName, modelName string) string {
	if opts == nil {
		return ""
	}

	entries := []struct {
		show  bool
		label string
		value string
	}{
		{opts.ShowAgent, "Agent", agentName},
		{opts.ShowModel, "Model", modelName},
	}

	var parts []string
	for _, e := range entries {
		if e.show && e.value != "" {
			parts = append(parts, e.label+": "+e.value)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "*" + strings.Join(parts, " || ") + "*"
}
