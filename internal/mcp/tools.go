package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchFamiliesTool = mcp.NewTool("search_families",
	mcp.WithDescription("Search the Revit family catalog by name, description or category."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Case-insensitive search term"),
	),
	mcp.WithString("filter",
		mcp.Description("Restrict results to parametric or free families"),
		mcp.Enum("all", "parametric", "free"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
)

var getFamilyTool = mcp.NewTool("get_family",
	mcp.WithDescription("Get the full record of one family, including its categories, vendor and download links."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Family record id"),
	),
)

var topCategoriesTool = mcp.NewTool("top_categories",
	mcp.WithDescription("List the categories with the most families."),
	mcp.WithNumber("limit",
		mcp.Description("Number of categories to return (default 3)"),
	),
)

var latestPluginTool = mcp.NewTool("latest_plugin",
	mcp.WithDescription("Describe the latest ProRVT plugin release and where to download it."),
)
