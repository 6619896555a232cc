package consistency

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"trapcat/internal/findings"
)

// foldKey collapses the differences hints look for: Unicode normalization
// form, letter case, Windows path separators and redundant path elements.
func foldKey(name string) string {
	return strings.ToLower(norm.NFC.String(path.Clean(strings.ReplaceAll(name, `\`, "/"))))
}

// nearMissReason names how two distinct filenames with equal fold keys differ.
func nearMissReason(a, b string) string {
	switch {
	case path.Clean(a) == path.Clean(b):
		return "non-canonical path"
	case norm.NFC.String(a) == norm.NFC.String(b):
		return "unicode normalization"
	case strings.ReplaceAll(a, `\`, "/") == strings.ReplaceAll(b, `\`, "/"):
		return "path separator"
	case strings.EqualFold(a, b):
		return "letter case"
	default:
		return "letter case and encoding"
	}
}

// attachHints pairs missing filenames with orphans that are near matches.
// Each orphan is paired with the first missing name that folds onto it.
func attachHints(missing, orphans []findings.Finding) {
	if len(missing) == 0 || len(orphans) == 0 {
		return
	}
	byKey := make(map[string]int, len(orphans))
	for i, orphan := range orphans {
		key := foldKey(orphan.Filename)
		if _, seen := byKey[key]; !seen {
			byKey[key] = i
		}
	}
	for i := range missing {
		j, ok := byKey[foldKey(missing[i].Filename)]
		if !ok || orphans[j].Hint != "" {
			continue
		}
		reason := nearMissReason(missing[i].Filename, orphans[j].Filename)
		missing[i].Hint = fmt.Sprintf("disk has %q (differs by %s)", orphans[j].Filename, reason)
		orphans[j].Hint = fmt.Sprintf("metadata lists %q (differs by %s)", missing[i].Filename, reason)
	}
}
