package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// now is replaced in tests.
var now = time.Now

func (s *Server) handleSearchFamilies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	filter, err := catalog.ParseFilter(request.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	all, err := s.catalog.AllFamilies(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing families failed: %v", err)), nil
	}
	matches := catalog.FilterFamilies(all, query, filter)
	if len(matches) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No families match %q.", query)), nil
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return mcp.NewToolResultText(formatFamilies(matches)), nil
}

func (s *Server) handleGetFamily(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	f, err := s.catalog.GetFamily(ctx, id)
	if err != nil {
		if pocketbase.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("No family with id %q.", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("fetching family failed: %v", err)), nil
	}
	return mcp.NewToolResultText(s.formatFamily(f)), nil
}

func (s *Server) handleTopCategories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 3)
	if limit <= 0 {
		limit = 3
	}

	stats, err := s.catalog.CategoryStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading category stats failed: %v", err)), nil
	}
	bars := catalog.TopCategoryBars(stats, limit)
	if len(bars) == 0 {
		return mcp.NewToolResultText("No categories yet."), nil
	}

	var b strings.Builder
	for i, c := range bars {
		fmt.Fprintf(&b, "%d. %s: %d families (%.0f%%)\n", i+1, c.Name, c.FamilyCount, c.BarWidth)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleLatestPlugin(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := s.plugins.Latest(ctx)
	if err != nil {
		if errors.Is(err, plugins.ErrNoReleases) {
			return mcp.NewToolResultText("No plugin releases have been published."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("loading plugin releases failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(plugins.Banner(rel, now()))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "File: %s (%s)\n", rel.FriendlyFileName(), rel.SizeLabel())
	fmt.Fprintf(&b, "Download: %s\n", s.plugins.InstallerURL(rel))
	b.WriteString("\nSystem requirements:\n")
	for _, req := range plugins.SystemRequirements {
		fmt.Fprintf(&b, "- %s\n", req)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// formatFamilies renders one line per family.
func formatFamilies(items []catalog.Family) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d famil%s:\n", len(items), plural(len(items)))
	for _, f := range items {
		fmt.Fprintf(&b, "\n- %s [%s] (%s)", f.Name, f.ID, f.Freemium)
		if cats := f.CategoryNames(); len(cats) > 0 {
			fmt.Fprintf(&b, " in %s", strings.Join(cats, ", "))
		}
		if f.Parametric {
			b.WriteString(", parametric")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (s *Server) formatFamily(f *catalog.Family) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", f.Name)
	fmt.Fprintf(&b, "**ID:** %s\n", f.ID)
	if f.SKU != "" {
		fmt.Fprintf(&b, "**SKU:** %s\n", f.SKU)
	}
	fmt.Fprintf(&b, "**Tier:** %s\n", f.Freemium)
	fmt.Fprintf(&b, "**Parametric:** %t\n", f.Parametric)
	fmt.Fprintf(&b, "**Nested family:** %t\n", f.NestedFamily)
	if cats := f.CategoryNames(); len(cats) > 0 {
		fmt.Fprintf(&b, "**Categories:** %s\n", strings.Join(cats, ", "))
	}
	if f.Expand != nil && f.Expand.Vendor != nil {
		fmt.Fprintf(&b, "**Vendor:** %s\n", f.Expand.Vendor.Name)
	}
	fmt.Fprintf(&b, "**Thumbnail:** %s\n", s.catalog.ThumbnailURL(f))
	if u := s.catalog.RFAURL(f); u != "" {
		fmt.Fprintf(&b, "**RFA:** %s\n", u)
	}
	if f.Desc != "" {
		fmt.Fprintf(&b, "\n%s\n", f.Desc)
	}
	if f.Specification != "" {
		fmt.Fprintf(&b, "\n### Specification\n\n%s\n", f.Specification)
	}
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
