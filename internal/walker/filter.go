package walker

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are directory names the walker never descends into.
// Revit writes its own "Backup" folders next to central models.
var DefaultExcludes = []string{
	".git",
	".rvtstudio",
	"Backup",
	"__MACOSX",
	"$RECYCLE.BIN",
}

// revitBackup matches the numbered copies Revit keeps on save, e.g.
// "Door.0003.rfa".
var revitBackup = regexp.MustCompile(`(?i)\.\d{4}\.(rfa|rvt|rte|rft)$`)

// IsRevitBackup reports whether name is a numbered Revit backup copy.
func IsRevitBackup(name string) bool {
	return revitBackup.MatchString(name)
}

func shouldExcludeDir(name string) bool {
	for _, excl := range DefaultExcludes {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

// Patterns is a list of doublestar globs. A pattern matches a relative path
// either in full or against its base name, so "*.rfa" matches "a/b.rfa".
type Patterns []string

// Match reports whether relPath matches any pattern. Malformed patterns
// never match; use ValidatePatterns to reject them up front.
func (p Patterns) Match(relPath string) bool {
	rel := strings.ReplaceAll(relPath, `\`, "/")
	base := path.Base(rel)
	for _, pattern := range p {
		pattern = strings.ReplaceAll(pattern, `\`, "/")
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// MatchesInclude reports whether relPath passes the include list. An empty
// list includes everything.
func MatchesInclude(relPath string, patterns []string) bool {
	return len(patterns) == 0 || Patterns(patterns).Match(relPath)
}

// MatchesExclude reports whether relPath is removed by the exclude list.
func MatchesExclude(relPath string, patterns []string) bool {
	return Patterns(patterns).Match(relPath)
}

// ValidatePatterns returns an error naming the first malformed glob.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}
