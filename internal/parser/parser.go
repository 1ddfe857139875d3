// Package parser extracts structured metadata from PowerShell script text.
//
// Parsing is best-effort and total: any section that cannot be recognized is
// simply omitted, never an error. A script with no help block and no param
// block still yields a usable (empty) Metadata value, so cataloging can
// always render something.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/scriptdeck/scriptdeck/internal/models"
)

var (
	helpBlockRe    = regexp.MustCompile(`(?s)<#(.*?)#>`)
	sectionTagRe   = regexp.MustCompile(`(?i)^\s*\.([A-Z]+)(?:\s+(\S+))?\s*$`)
	paramKeywordRe = regexp.MustCompile(`(?i)(?:^|\s)param\s*\(`)
	attributeRe    = regexp.MustCompile(`(?is)\[(?:parameter|validate\w*|alias|cmdletbinding|allownull|allowemptystring)\s*\([^\]]*\)\]`)
	mandatoryRe    = regexp.MustCompile(`(?i)mandatory\s*=\s*\$true`)
	validateSetRe  = regexp.MustCompile(`(?is)\[validateset\(([^)]*)\)\]`)
	declarationRe  = regexp.MustCompile(`(?s)(?:\[([^\]]+)\]\s*)?\$(\w+)(?:\s*=\s*(.*))?`)
	authorRe       = regexp.MustCompile(`(?i)author:\s*(.+)`)
	versionRe      = regexp.MustCompile(`(?i)version:\s*(.+)`)
	requiresRe     = regexp.MustCompile(`(?im)^#requires\s+-(.+)$`)
)

// Parse extracts metadata from raw script content. It never fails.
func Parse(content string) models.Metadata {
	var meta models.Metadata

	paramDescriptions := map[string]string{}

	if block, ok := extractHelpBlock(content); ok {
		parseHelpBlock(block, &meta, paramDescriptions)
	}

	if block, ok := extractParamBlock(content); ok {
		meta.Parameters = parseParameters(block)
	}

	// Per-parameter help tags are matched by name, case-insensitively.
	for i := range meta.Parameters {
		if desc, ok := paramDescriptions[strings.ToLower(meta.Parameters[i].Name)]; ok {
			meta.Parameters[i].Description = desc
		}
	}

	for _, m := range requiresRe.FindAllStringSubmatch(content, -1) {
		meta.Requires = append(meta.Requires, strings.TrimSpace(m[1]))
	}

	return meta
}

// extractHelpBlock returns the contents of the first <# ... #> comment.
func extractHelpBlock(content string) (string, bool) {
	m := helpBlockRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// parseHelpBlock walks the help block line by line, splitting it into dot-tag
// sections (.SYNOPSIS, .DESCRIPTION, .PARAMETER <name>, .EXAMPLE, .NOTES).
// Unknown tags are skipped.
func parseHelpBlock(block string, meta *models.Metadata, paramDescriptions map[string]string) {
	type section struct {
		tag  string
		arg  string
		body []string
	}

	var sections []section
	current := -1

	for _, line := range strings.Split(block, "\n") {
		if m := sectionTagRe.FindStringSubmatch(line); m != nil {
			sections = append(sections, section{tag: strings.ToUpper(m[1]), arg: m[2]})
			current = len(sections) - 1
			continue
		}
		if current >= 0 {
			sections[current].body = append(sections[current].body, strings.TrimSpace(line))
		}
	}

	exampleCount := 0
	for _, s := range sections {
		body := strings.TrimSpace(strings.Join(s.body, "\n"))

		switch s.tag {
		case "SYNOPSIS":
			meta.Synopsis = body
		case "DESCRIPTION":
			meta.Description = body
		case "PARAMETER":
			if s.arg != "" {
				paramDescriptions[strings.ToLower(s.arg)] = body
			}
		case "EXAMPLE":
			exampleCount++
			meta.Examples = append(meta.Examples, parseExample(body, exampleCount))
		case "NOTES":
			meta.Notes = body
			if m := authorRe.FindStringSubmatch(body); m != nil {
				meta.Author = strings.TrimSpace(m[1])
			}
			if m := versionRe.FindStringSubmatch(body); m != nil {
				meta.Version = strings.TrimSpace(m[1])
			}
		}
	}
}

// parseExample treats the first non-empty line as the invocation and the rest
// as remarks, which matches the comment-based help convention.
func parseExample(body string, n int) models.Example {
	ex := models.Example{Title: "EXAMPLE " + strconv.Itoa(n)}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ex.Code = strings.TrimSpace(line)
		ex.Remarks = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		break
	}
	return ex
}

// extractParamBlock finds the script-level param( ... ) declaration and
// returns its contents with balanced parentheses. A naive non-greedy match
// would stop at the first ')' inside a [Parameter(...)] attribute.
func extractParamBlock(content string) (string, bool) {
	loc := paramKeywordRe.FindStringIndex(content)
	if loc == nil {
		return "", false
	}

	start := loc[1] // position just past the opening paren
	depth := 1
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return content[start:i], true
			}
		}
	}
	return "", false
}

// parseParameters splits the param block into declarations at top-level
// commas and extracts name, type, mandatory flag, valid-value set, and
// default from each. Duplicate names keep the first declaration.
func parseParameters(block string) []models.Parameter {
	var params []models.Parameter
	seen := map[string]bool{}

	for _, entry := range splitTopLevel(block) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		p := models.Parameter{Type: models.TypeString}
		p.Mandatory = mandatoryRe.MatchString(entry)

		if m := validateSetRe.FindStringSubmatch(entry); m != nil {
			p.Type = models.TypeEnum
			for _, v := range strings.Split(m[1], ",") {
				v = strings.Trim(strings.TrimSpace(v), `'"`)
				if v != "" {
					p.ValidValues = append(p.ValidValues, v)
				}
			}
		}

		// Strip attribute blocks so the declaration regex sees only the
		// optional type cast, the variable, and its default.
		stripped := strings.TrimSpace(attributeRe.ReplaceAllString(entry, ""))

		m := declarationRe.FindStringSubmatch(stripped)
		if m == nil || m[2] == "" {
			continue
		}

		p.Name = m[2]
		if seen[strings.ToLower(p.Name)] {
			continue
		}
		seen[strings.ToLower(p.Name)] = true

		if p.Type != models.TypeEnum {
			p.Type = inferType(m[1])
		}
		p.Default = strings.Trim(strings.TrimSpace(m[3]), `'"`)

		params = append(params, p)
	}

	return params
}

// splitTopLevel splits s at commas that are not nested inside parentheses or
// brackets, so [ValidateSet('a','b')] and @(1,2) defaults stay intact.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	last := 0

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// inferType maps a PowerShell type cast to the dashboard's parameter types.
// Anything ambiguous falls back to string.
func inferType(cast string) models.ParameterType {
	switch strings.ToLower(strings.TrimSpace(cast)) {
	case "switch", "bool", "boolean", "system.boolean":
		return models.TypeBoolean
	case "int", "int16", "int32", "int64", "long", "uint32", "uint64",
		"double", "float", "single", "decimal", "byte", "system.int32":
		return models.TypeNumber
	default:
		return models.TypeString
	}
}

