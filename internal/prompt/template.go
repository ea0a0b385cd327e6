// Package prompt renders the model prompts used by the analysis agents.
// Every prompt is a named template; a run can override any of them by
// dropping a file with the same name under <data-dir>/prompts/.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Render expands a template string with the given variables.
// {{variable}} is replaced with its value. Missing variables cause an error.
// {{#if variable}}...{{/if}} blocks are included only if the variable is non-empty.
func Render(tmpl string, vars Vars) (string, error) {
	result, err := processConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	// Expand variables, collecting any missing ones.
	var missing []string
	expanded := varRe.ReplaceAllStringFunc(result, func(match string) string {
		m := varRe.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		name := m[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match // leave placeholder for error reporting
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return expanded, nil
}

// processConditionals handles {{#if var}}...{{/if}} blocks, supporting nesting.
// Innermost blocks resolve first: for each {{/if}} the last preceding {{#if
// is its opener.
func processConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			break
		}

		prefix := result[:closeIdx]
		openLocs := ifOpenRe.FindAllStringIndex(prefix, -1)
		if openLocs == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}
		lastOpen := openLocs[len(openLocs)-1]
		openStart := lastOpen[0]
		openEnd := lastOpen[1]

		openTag := prefix[openStart:openEnd]
		m := ifOpenRe.FindStringSubmatch(openTag)
		if m == nil {
			return "", fmt.Errorf("failed to parse conditional tag: %s", openTag)
		}
		varName := m[1]

		body := result[openEnd:closeIdx]
		closeEnd := closeIdx + len(ifCloseStr)

		var replacement string
		if val, ok := vars[varName]; ok && val != "" {
			replacement = body
		}

		result = result[:openStart] + replacement + result[closeEnd:]
	}

	if ifOpenRe.MatchString(result) {
		loc := ifOpenRe.FindString(result)
		return "", fmt.Errorf("unclosed conditional block: %s", loc)
	}

	return result, nil
}

// Load returns the template with the given name. A file at
// <dataDir>/prompts/<name> overrides the built-in template; otherwise the
// built-in is used.
func Load(name string, dataDir string) (string, error) {
	if dataDir != "" {
		override := filepath.Join(dataDir, "prompts", name)
		if data, err := os.ReadFile(override); err == nil {
			return string(data), nil
		}
	}
	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	return tmpl, nil
}

// Build loads and renders a template in one step.
func Build(name string, dataDir string, vars Vars) (string, error) {
	tmpl, err := Load(name, dataDir)
	if err != nil {
		return "", err
	}
	rendered, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return rendered, nil
}
