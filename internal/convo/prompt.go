// ABOUTME: Prompt variable definitions and introduction template substitution
// ABOUTME: Replaces {{variable}} placeholders with collected input values

package convo

import "strings"

// PromptVariable describes one input variable the user must provide
// before the first message of a new conversation, as declared by the
// backend's app parameters.
type PromptVariable struct {
	Key      string
	Name     string
	Required bool
}

// ReplaceVars substitutes {{key}} placeholders in an introduction
// template with the scalar values collected from the user. File-bearing
// values are left untouched.
func ReplaceVars(template string, vars []PromptVariable, inputs Inputs) string {
	if template == "" || len(inputs) == 0 {
		return template
	}
	out := template
	for _, v := range vars {
		val, ok := inputs[v.Key]
		if !ok || val.Kind != ValueText || val.Text == "" {
			continue
		}
		out = strings.ReplaceAll(out, "{{"+v.Key+"}}", val.Text)
	}
	return out
}

// MissingRequired returns the names of required variables that have no
// usable value in the given inputs.
func MissingRequired(vars []PromptVariable, inputs Inputs) []string {
	var missing []string
	for _, v := range vars {
		if !v.Required {
			continue
		}
		val, ok := inputs[v.Key]
		if !ok || val.empty() {
			name := v.Name
			if name == "" {
				name = v.Key
			}
			missing = append(missing, name)
		}
	}
	return missing
}

func (v Value) empty() bool {
	switch v.Kind {
	case ValueFile:
		return v.File == nil
	case ValueFileList:
		return len(v.Files) == 0
	default:
		return v.Text == ""
	}
}
