package stage

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a capability task. Kinds combine into a bitmask that callers
// pass when enqueueing a job.
type Kind int

const (
	KindImport        Kind = 1 << 0
	KindConvert       Kind = 1 << 1
	KindScan          Kind = 1 << 2
	KindHash          Kind = 1 << 3
	KindParseMetadata Kind = 1 << 4

	KindDefault = KindImport | KindHash | KindScan
	KindAll     = KindImport | KindConvert | KindScan | KindHash | KindParseMetadata
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{KindImport, "import"},
	{KindConvert, "convert"},
	{KindScan, "scan"},
	{KindHash, "hash"},
	{KindParseMetadata, "parse_metadata"},
}

// Has reports whether every bit of other is set in k.
func (k Kind) Has(other Kind) bool {
	return other != 0 && k&other == other
}

// String renders single kinds by name and masks as a comma list.
func (k Kind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	rest := k
	for _, entry := range kindNames {
		if k&entry.kind != 0 {
			parts = append(parts, entry.name)
			rest &^= entry.kind
		}
	}
	if rest != 0 {
		parts = append(parts, strconv.Itoa(int(rest)))
	}
	return strings.Join(parts, ",")
}

// ParseKinds accepts an integer mask, a comma separated list of names, or the
// aliases "default" and "all". Empty input yields KindDefault.
func ParseKinds(raw string) (Kind, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return KindDefault, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 || Kind(n)&^KindAll != 0 {
			return 0, fmt.Errorf("task mask %d out of range", n)
		}
		return Kind(n), nil
	}

	var mask Kind
	for _, token := range strings.Split(raw, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		token = strings.ReplaceAll(token, "-", "_")
		switch token {
		case "":
			continue
		case "default":
			mask |= KindDefault
			continue
		case "all":
			mask |= KindAll
			continue
		case "parsemetadata", "metadata":
			mask |= KindParseMetadata
			continue
		}
		found := false
		for _, entry := range kindNames {
			if entry.name == token {
				mask |= entry.kind
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown task %q", token)
		}
	}
	if mask == 0 {
		return KindDefault, nil
	}
	return mask, nil
}
