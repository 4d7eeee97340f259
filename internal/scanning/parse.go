package scanning

import (
	"regexp"

	"modelscanner/internal/result"
)

var (
	globalImportListPattern = regexp.MustCompile(`Global imports in (?:.+): {(.+)}`)
	globalImportPattern     = regexp.MustCompile(`\((.+?)\)`)
	dangerousImportPattern  = regexp.MustCompile(`dangerous import '(.+)'`)
)

// ParseGlobalImports extracts every parenthesised import from the
// "Global imports in <file>: {...}" lines of a picklescan report.
func ParseGlobalImports(output string) result.StringSet {
	set := result.NewStringSet()
	for _, list := range globalImportListPattern.FindAllStringSubmatch(output, -1) {
		for _, m := range globalImportPattern.FindAllStringSubmatch(list[1], -1) {
			set.Add(m[1])
		}
	}
	return set
}

// ParseDangerousImports extracts the names from "dangerous import '<name>'" lines.
func ParseDangerousImports(output string) result.StringSet {
	set := result.NewStringSet()
	for _, m := range dangerousImportPattern.FindAllStringSubmatch(output, -1) {
		set.Add(m[1])
	}
	return set
}
