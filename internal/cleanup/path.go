package cleanup

import (
	"net/url"
	"regexp"
	"strconv"
)

var objectPathPattern = regexp.MustCompile(`^/?(\d+)/model/(.+)$`)

// reference identifies an uploaded model file by owner and file name.
type reference struct {
	userID   int64
	fileName string
}

// ParseObjectPath splits "<userId>/model/<file>" into its parts. A leading
// slash is accepted.
func ParseObjectPath(path string) (int64, string, bool) {
	m := objectPathPattern.FindStringSubmatch(path)
	if m == nil {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return 0, "", false
	}
	return userID, m[2], true
}

// referenceFromURL parses an absolute file URL stored by the site.
func referenceFromURL(raw string) (reference, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return reference{}, false
	}
	userID, name, ok := ParseObjectPath(u.Path)
	if !ok {
		return reference{}, false
	}
	return reference{userID: userID, fileName: name}, true
}
