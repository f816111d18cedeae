package plugins

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SystemRequirements lists what the plugin needs on the client machine.
var SystemRequirements = []string{
	"Autodesk Revit 2022 or later",
	"Windows OS",
	"Minimum 8GB RAM recommended",
	"At least 500MB free disk space",
	"Intel i5 or equivalent, 64-bit",
	"Internet Connection Required to View Families",
}

// DateLayout is used by FormatDate.
const DateLayout = "Jan 2, 2006"

// QRCodeEndpoint renders QR codes as PNG.
const QRCodeEndpoint = "https://api.qrserver.com/v1/create-qr-code/"

// FriendlyFileName returns the installer name for a version.
func FriendlyFileName(version string) string {
	return fmt.Sprintf("ProRVT_v%s_Setup.exe", version)
}

// Search keeps releases whose friendly file name contains term, ignoring
// case. Results are sorted newest first.
func Search(releases []Release, term string) []Release {
	term = strings.ToLower(term)
	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		if strings.Contains(strings.ToLower(r.FriendlyFileName()), term) {
			out = append(out, r)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders releases by created time, newest first.
func SortNewestFirst(releases []Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		ti, _ := ParseTime(releases[i].Created)
		tj, _ := ParseTime(releases[j].Created)
		return ti.After(tj)
	})
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.000Z",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05.000Z07:00",
	time.RFC3339Nano,
	time.DateTime,
	time.DateOnly,
}

// ParseTime parses the timestamp formats the backend emits.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a backend timestamp as "Jan 2, 2006". Unparseable
// input is returned unchanged.
func FormatDate(s string) string {
	t, ok := ParseTime(s)
	if !ok {
		return s
	}
	return t.Format(DateLayout)
}

// TimeAgo describes how many whole days ago t was, relative to now.
func TimeAgo(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch days {
	case 0:
		return "Today"
	case 1:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}

// QRCodeURL returns a 300x300 QR code image URL encoding target.
func QRCodeURL(target string) string {
	return QRCodeEndpoint + "?size=300x300&data=" + url.QueryEscape(target)
}
