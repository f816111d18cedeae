package plugins

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendlyFileName(t *testing.T) {
	assert.Equal(t, "ProRVT_v1.4.2_Setup.exe", FriendlyFileName("1.4.2"))
}

func TestSearch(t *testing.T) {
	releases := []Release{
		{Version: "1.0.0", Created: "2024-01-01 10:00:00.000Z"},
		{Version: "1.1.0", Created: "2024-03-01 10:00:00.000Z"},
		{Version: "2.0.0", Created: "2024-02-01 10:00:00.000Z"},
	}

	got := Search(releases, "PRORVT_V1")
	require.Len(t, got, 2)
	assert.Equal(t, "1.1.0", got[0].Version)
	assert.Equal(t, "1.0.0", got[1].Version)

	assert.Len(t, Search(releases, ""), 3)
	assert.Empty(t, Search(releases, "nothing"))
}

func TestParseTime(t *testing.T) {
	for _, in := range []string{
		"2024-05-01 12:30:00.000Z",
		"2024-05-01 12:30:00Z",
		"2024-05-01T12:30:00Z",
	} {
		got, ok := ParseTime(in)
		require.True(t, ok, in)
		assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), got.UTC(), in)
	}

	_, ok := ParseTime("")
	assert.False(t, ok)
	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "May 1, 2024", FormatDate("2024-05-01 12:30:00.000Z"))
	assert.Equal(t, "Dec 31, 2023", FormatDate("2023-12-31T08:00:00Z"))
	assert.Equal(t, "not a date", FormatDate("not a date"))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		then time.Time
		want string
	}{
		{now.Add(-3 * time.Hour), "Today"},
		{now.Add(-23 * time.Hour), "Today"},
		{now.Add(-25 * time.Hour), "1 day ago"},
		{now.Add(-9 * 24 * time.Hour), "9 days ago"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TimeAgo(tc.then, now))
	}
}

func TestQRCodeURL(t *testing.T) {
	got := QRCodeURL("https://brezelbits.xyz/plugins?a=1")
	assert.True(t, strings.HasPrefix(got, "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="))
	assert.Contains(t, got, "https%3A%2F%2Fbrezelbits.xyz%2Fplugins%3Fa%3D1")
}

func TestReleaseHelpers(t *testing.T) {
	r := Release{Version: "1.2", Created: "2024-01-01 00:00:00.000Z", CreatedAt: "2023-06-01 00:00:00.000Z"}
	assert.Equal(t, "Unknown size", r.SizeLabel())
	assert.Equal(t, 2023, r.CreatedTime().Year())

	r.Size = "42 MB"
	r.CreatedAt = ""
	assert.Equal(t, "42 MB", r.SizeLabel())
	assert.Equal(t, 2024, r.CreatedTime().Year())
}

func TestBanner(t *testing.T) {
	r := &Release{Version: "3.1", Updated: "2024-05-08 09:00:00.000Z"}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Plugin version 3.1 was updated on May 8, 2024 (2 days ago)", Banner(r, now))
}

func TestRenderChangelog(t *testing.T) {
	html, err := RenderChangelog("## Fixes\n\n- faster sync\n- <b>bold</b> notes\n")
	require.NoError(t, err)
	assert.Contains(t, html, `<h2 id="fixes">Fixes</h2>`)
	assert.Contains(t, html, "<li>faster sync</li>")
	assert.Contains(t, html, "<b>bold</b>")
}

func TestWriteChangelogPage(t *testing.T) {
	var sb strings.Builder
	err := WriteChangelogPage(&sb, []Release{
		{Version: "1.0", Created: "2024-01-01 00:00:00.000Z", Updates: "first"},
		{Version: "1.1", Created: "2024-02-01 00:00:00.000Z"},
	})
	require.NoError(t, err)

	page := sb.String()
	newer := strings.Index(page, "v1.1")
	older := strings.Index(page, "v1.0")
	require.True(t, newer > 0 && older > 0)
	assert.Less(t, newer, older)
	assert.Contains(t, page, "No release notes.")
	assert.Contains(t, page, "Created: Jan 1, 2024")
}
