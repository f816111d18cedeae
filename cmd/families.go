package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/notifications"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
	"github.com/ziadkadry99/rvt-studio/internal/studio"
)

var familiesCmd = &cobra.Command{
	Use:     "families",
	Aliases: []string{"family", "f"},
	Short:   "Browse and edit catalog families",
}

var familiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List families, optionally filtered",
	RunE:  runFamiliesList,
}

var familiesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one family",
	Args:  cobra.ExactArgs(1),
	RunE:  runFamiliesShow,
}

var familiesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit one family",
	Long: `Edits one family. Only the flags you pass are changed; empty text
fields fall back to the catalog defaults when saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runFamiliesEdit,
}

var familiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a family",
	Args:  cobra.ExactArgs(1),
	RunE:  runFamiliesDelete,
}

var familiesBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Apply one change to many families at once",
	Long: `Selects families by --id, or by --search and --filter, and applies one
change to all of them in parallel: --tier, --parametric or --categories.`,
	RunE: runFamiliesBulk,
}

var familiesCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List categories with their family counts",
	RunE:  runFamiliesCategories,
}

func init() {
	familiesListCmd.Flags().Int("page", 1, "page number")
	familiesListCmd.Flags().Int("per-page", 0, "page size (default from config)")
	familiesListCmd.Flags().String("search", "", "case-insensitive search on name, description and categories")
	familiesListCmd.Flags().String("filter", "all", "all, parametric or free")
	familiesListCmd.Flags().Bool("all", false, "list every family instead of one page")

	familiesEditCmd.Flags().String("name", "", "family name")
	familiesEditCmd.Flags().String("sku", "", "SKU")
	familiesEditCmd.Flags().String("desc", "", "description")
	familiesEditCmd.Flags().String("tier", "", "free or premium")
	familiesEditCmd.Flags().String("spec", "", "specification")
	familiesEditCmd.Flags().StringSlice("categories", nil, "category names, created when missing")
	familiesEditCmd.Flags().Bool("parametric", true, "parametric family")
	familiesEditCmd.Flags().Bool("nested", true, "nested family")

	familiesDeleteCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	familiesBulkCmd.Flags().StringSlice("id", nil, "family ids to change")
	familiesBulkCmd.Flags().String("search", "", "select families matching this search")
	familiesBulkCmd.Flags().String("filter", "all", "all, parametric or free")
	familiesBulkCmd.Flags().String("tier", "", "set the tier: free or premium")
	familiesBulkCmd.Flags().String("parametric", "", "set parametric: true or false")
	familiesBulkCmd.Flags().StringSlice("categories", nil, "replace categories with these names")
	familiesBulkCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	familiesCategoriesCmd.Flags().Int("top", 0, "only show the N largest categories")

	familiesCmd.AddCommand(familiesListCmd, familiesShowCmd, familiesEditCmd,
		familiesDeleteCmd, familiesBulkCmd, familiesCategoriesCmd)
	rootCmd.AddCommand(familiesCmd)
}

func catalogService(s *session) *catalog.Service {
	return catalog.NewService(s.client, s.cfg.PerPage)
}

func runFamiliesList(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	filterStr, _ := cmd.Flags().GetString("filter")
	filter, err := catalog.ParseFilter(filterStr)
	if err != nil {
		return err
	}
	search, _ := cmd.Flags().GetString("search")
	all, _ := cmd.Flags().GetBool("all")
	svc := catalogService(s)

	var items []catalog.Family
	footer := ""
	if all {
		if items, err = svc.AllFamilies(cmd.Context()); err != nil {
			return err
		}
	} else {
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")
		res, err := svc.ListFamilies(cmd.Context(), page, perPage)
		if err != nil {
			return err
		}
		items = res.Items
		footer = fmt.Sprintf("Page %d of %d (%d families)", res.Page, res.TotalPages, res.TotalItems)
	}

	items = catalog.FilterFamilies(items, search, filter)
	printFamilies(items)
	if footer != "" {
		fmt.Println()
		fmt.Println(footer)
	}
	return nil
}

func printFamilies(items []catalog.Family) {
	if len(items) == 0 {
		fmt.Println("No families found.")
		return
	}
	fmt.Printf("%-16s %-32s %-8s %-10s %s\n", "ID", "NAME", "TIER", "PARAMETRIC", "CATEGORIES")
	for _, f := range items {
		fmt.Printf("%-16s %-32s %-8s %-10t %s\n",
			f.ID, truncate(f.Name, 32), f.Freemium, f.Parametric, strings.Join(f.CategoryNames(), ", "))
	}
}

func runFamiliesShow(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	svc := catalogService(s)
	f, err := svc.GetFamily(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Name:          %s\n", f.Name)
	fmt.Printf("ID:            %s\n", f.ID)
	fmt.Printf("SKU:           %s\n", f.SKU)
	fmt.Printf("Tier:          %s\n", f.Freemium)
	fmt.Printf("Parametric:    %t\n", f.Parametric)
	fmt.Printf("Nested family: %t\n", f.NestedFamily)
	fmt.Printf("Categories:    %s\n", strings.Join(f.CategoryNames(), ", "))
	if f.Expand != nil && f.Expand.Vendor != nil {
		fmt.Printf("Vendor:        %s\n", f.Expand.Vendor.Name)
	}
	fmt.Printf("Thumbnail:     %s\n", svc.ThumbnailURL(f))
	if u := svc.RFAURL(f); u != "" {
		fmt.Printf("RFA:           %s\n", u)
	}
	if f.Desc != "" {
		fmt.Printf("\n%s\n", f.Desc)
	}
	if f.Specification != "" {
		fmt.Printf("\nSpecification:\n%s\n", f.Specification)
	}
	return nil
}

func runFamiliesEdit(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc := catalogService(s)

	f, err := svc.GetFamily(ctx, args[0])
	if err != nil {
		return err
	}
	sess := studio.NewSession()
	sess.Replace([]catalog.Family{*f})
	d, err := sess.StartDraft(f.ID)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		d.Name, _ = flags.GetString("name")
	}
	if flags.Changed("sku") {
		d.SKU, _ = flags.GetString("sku")
	}
	if flags.Changed("desc") {
		d.Desc, _ = flags.GetString("desc")
	}
	if flags.Changed("tier") {
		d.Freemium, _ = flags.GetString("tier")
	}
	if flags.Changed("spec") {
		d.Specification, _ = flags.GetString("spec")
	}
	if flags.Changed("parametric") {
		v, _ := flags.GetBool("parametric")
		d.Parametric = &v
	}
	if flags.Changed("nested") {
		v, _ := flags.GetBool("nested")
		d.NestedFamily = &v
	}
	if flags.Changed("categories") {
		names, _ := flags.GetStringSlice("categories")
		if d.Categories, err = categoryIDs(ctx, svc, names); err != nil {
			return err
		}
	}
	if err := sess.SetDraft(f.ID, d); err != nil {
		return err
	}

	updated, payload, err := sess.SaveDraft(ctx, svc, f.ID)
	if err != nil {
		return err
	}
	if err := recordChange(ctx, s, catalog.Change{
		Action:   "family_updated",
		RecordID: updated.ID,
		Summary:  fmt.Sprintf("Updated %s", updated.Name),
		Payload:  payload,
	}); err != nil {
		return err
	}
	fmt.Printf("Saved %s.\n", updated.Name)
	return nil
}

// categoryIDs resolves category names to ids, creating missing ones.
func categoryIDs(ctx context.Context, svc *catalog.Service, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		c, err := svc.EnsureCategory(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func runFamiliesDelete(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc := catalogService(s)

	f, err := svc.GetFamily(ctx, args[0])
	if err != nil {
		return err
	}
	yes, _ := cmd.Flags().GetBool("yes")
	if !confirm(fmt.Sprintf("Delete %s", f.Name), yes) {
		fmt.Println("Aborted.")
		return nil
	}
	if err := svc.DeleteFamily(ctx, f.ID); err != nil {
		return err
	}
	if err := recordChange(ctx, s, catalog.Change{
		Action:   "family_deleted",
		RecordID: f.ID,
		Summary:  fmt.Sprintf("Deleted %s", f.Name),
	}); err != nil {
		return err
	}
	fmt.Printf("Deleted %s.\n", f.Name)
	return nil
}

func runFamiliesBulk(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc := catalogService(s)
	flags := cmd.Flags()

	req, err := bulkRequestFromFlags(ctx, cmd, svc)
	if err != nil {
		return err
	}

	all, err := svc.AllFamilies(ctx)
	if err != nil {
		return err
	}
	sess := studio.NewSession()
	sess.Replace(all)
	sess.SetSelectionMode(true)

	ids, _ := flags.GetStringSlice("id")
	if len(ids) > 0 {
		if n := sess.Select(ids...); n != len(ids) {
			return fmt.Errorf("%d of %d ids are not in the catalog", len(ids)-n, len(ids))
		}
	} else {
		search, _ := flags.GetString("search")
		filterStr, _ := flags.GetString("filter")
		filter, err := catalog.ParseFilter(filterStr)
		if err != nil {
			return err
		}
		if search == "" && filter == catalog.FilterAll {
			return fmt.Errorf("select families with --id, --search or --filter")
		}
		sess.SetQuery(search, filter)
		sess.SelectAll()
	}

	selected := sess.Selected()
	if len(selected) == 0 {
		fmt.Println("No families match the selection.")
		return nil
	}
	yes, _ := flags.GetBool("yes")
	if !confirm(fmt.Sprintf("Apply %s to %d families", req.Action, len(selected)), yes) {
		fmt.Println("Aborted.")
		return nil
	}

	result, err := sess.ApplyBulk(ctx, svc, req, progress.NewReporter("Updating families"))
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		fmt.Printf("  %s: %s\n", e.ID, e.Error)
	}
	fmt.Println(result.Message)

	payload, _ := req.Payload()
	if err := recordChange(ctx, s, catalog.Change{
		Action:  "bulk_applied",
		Summary: fmt.Sprintf("Bulk %s on %d families (%d failed)", req.Action, result.Total, result.Failed),
		Payload: map[string]any{"ids": selected, "patch": payload},
	}); err != nil {
		return err
	}
	notifications.NewDispatcher(s.cfg.Webhooks).Dispatch(ctx, notifications.BulkEvent(
		notifications.TypeBulkApplied, "Bulk edit", result.Failed, result.Total))
	return nil
}

// bulkRequestFromFlags builds the single change a bulk run applies.
func bulkRequestFromFlags(ctx context.Context, cmd *cobra.Command, svc *catalog.Service) (studio.BulkRequest, error) {
	flags := cmd.Flags()
	var reqs []studio.BulkRequest
	if flags.Changed("tier") {
		v, _ := flags.GetString("tier")
		reqs = append(reqs, studio.BulkRequest{Action: studio.ActionFreemium, Value: v})
	}
	if flags.Changed("parametric") {
		v, _ := flags.GetString("parametric")
		reqs = append(reqs, studio.BulkRequest{Action: studio.ActionParametric, Value: strings.ToLower(v)})
	}
	if flags.Changed("categories") {
		names, _ := flags.GetStringSlice("categories")
		ids, err := categoryIDs(ctx, svc, names)
		if err != nil {
			return studio.BulkRequest{}, err
		}
		reqs = append(reqs, studio.BulkRequest{Action: studio.ActionCategories, Categories: ids})
	}
	if len(reqs) != 1 {
		return studio.BulkRequest{}, fmt.Errorf("pass exactly one of --tier, --parametric or --categories")
	}
	if _, err := reqs[0].Payload(); err != nil {
		return studio.BulkRequest{}, err
	}
	return reqs[0], nil
}

func runFamiliesCategories(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	stats, err := catalogService(s).CategoryStats(cmd.Context())
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")
	if top <= 0 {
		top = len(stats)
	}

	bars := catalog.TopCategoryBars(stats, top)
	if len(bars) == 0 {
		fmt.Println("No categories yet.")
		return nil
	}
	for _, c := range bars {
		width := int(c.BarWidth / 5)
		fmt.Printf("%-24s %5d %s\n", truncate(c.Name, 24), c.FamilyCount, strings.Repeat("█", width))
	}
	return nil
}

// recordChange writes c to the local audit log.
func recordChange(ctx context.Context, s *session, c catalog.Change) error {
	database, err := openDatabase(s.cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	s.newRecorder(database).RecordChange(ctx, c)
	return nil
}
