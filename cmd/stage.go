package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/db"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/notifications"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
	"github.com/ziadkadry99/rvt-studio/internal/staging"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage a folder of families and import it in bulk",
	Long: `Bulk upload works in four steps: scan a folder of .rfa files and
thumbnails, review and edit the staged items, pick categories, then import
every selected item. Staged items live in the local database until they are
imported or cleared.`,
}

var stageScanCmd = &cobra.Command{
	Use:   "scan <family-dir>",
	Short: "Stage every .rfa file in a directory, paired with its thumbnail",
	Args:  cobra.ExactArgs(1),
	RunE:  runStageScan,
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the staged items",
	RunE:  runStageList,
}

var stageEditCmd = &cobra.Command{
	Use:   "edit <item>",
	Short: "Edit a staged item (by number or id)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStageEdit,
}

var stageSelectCmd = &cobra.Command{
	Use:   "select [item...]",
	Short: "Select or deselect staged items for import",
	RunE:  runStageSelect,
}

var stageCategoriesCmd = &cobra.Command{
	Use:   "categories [name...]",
	Short: "Add categories to every selected item",
	Long: `Adds the given categories to every selected item. Without arguments,
pick categories interactively from the suggestions.`,
	RunE: runStageCategories,
}

var stageImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upload every selected item to the catalog",
	RunE:  runStageImport,
}

var stageClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the staged batch",
	RunE:  runStageClear,
}

func init() {
	stageScanCmd.Flags().String("thumbnails", "", "thumbnail directory (default: the family directory)")

	stageListCmd.Flags().Bool("unmatched", false, "only show items without a thumbnail")

	stageEditCmd.Flags().String("name", "", "family name")
	stageEditCmd.Flags().String("sku", "", "SKU")
	stageEditCmd.Flags().String("desc", "", "description")
	stageEditCmd.Flags().String("tier", "", "free or premium")
	stageEditCmd.Flags().Bool("parametric", true, "parametric family")
	stageEditCmd.Flags().Bool("nested", true, "nested family")
	stageEditCmd.Flags().StringSlice("add-category", nil, "categories to add")
	stageEditCmd.Flags().StringSlice("remove-category", nil, "categories to remove")
	stageEditCmd.Flags().Bool("delete", false, "remove the item from the batch")

	stageSelectCmd.Flags().Bool("all", false, "toggle every pending item")
	stageSelectCmd.Flags().Bool("off", false, "deselect the given items")

	stageImportCmd.Flags().Int("concurrency", 0, "parallel uploads (overrides config)")

	stageCmd.AddCommand(stageScanCmd, stageListCmd, stageEditCmd, stageSelectCmd,
		stageCategoriesCmd, stageImportCmd, stageClearCmd)
	rootCmd.AddCommand(stageCmd)
}

// stagingContext bundles what every stage subcommand needs.
type stagingContext struct {
	*session
	db    *db.DB
	store *staging.Store
	batch *staging.Batch
}

func openStaging(ctx context.Context) (*stagingContext, error) {
	s, err := requireSession()
	if err != nil {
		return nil, err
	}
	database, err := openDatabase(s.cfg)
	if err != nil {
		return nil, err
	}
	store := staging.NewStore(database)
	b, err := store.ActiveBatch(ctx, s.userID())
	if err != nil {
		database.Close()
		return nil, err
	}
	return &stagingContext{session: s, db: database, store: store, batch: b}, nil
}

func (sc *stagingContext) Close() error { return sc.db.Close() }

// resolveItem accepts a 1-based item number or an item id.
func (sc *stagingContext) resolveItem(ctx context.Context, ref string) (*staging.Item, error) {
	items, err := sc.store.ListItems(ctx, sc.batch.ID, staging.ItemFilter{})
	if err != nil {
		return nil, err
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(items) {
			return nil, fmt.Errorf("item %d out of range (1-%d)", n, len(items))
		}
		return &items[n-1], nil
	}
	for i := range items {
		if items[i].ID == ref {
			return &items[i], nil
		}
	}
	return nil, staging.ErrNotFound
}

func runStageScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	thumbs, _ := cmd.Flags().GetString("thumbnails")
	cfg := sc.cfg
	matched, err := staging.Scan(staging.ScanOptions{
		RFADir:       args[0],
		ThumbnailDir: thumbs,
		Include:      cfg.Upload.Include,
		Exclude:      cfg.Upload.Exclude,
		Defaults: matcher.Defaults{
			Parametric:   cfg.Defaults.Parametric,
			Freemium:     string(cfg.Defaults.Freemium),
			NestedFamily: cfg.Defaults.NestedFamily,
		},
	})
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		fmt.Println("No .rfa files found.")
		return nil
	}

	if _, err := sc.store.AddItems(ctx, sc.batch.ID, matched); err != nil {
		return err
	}
	sum := matcher.Summarize(matched)
	sc.newRecorder(sc.db).RecordChange(ctx, catalog.Change{
		Action:  "staged",
		Summary: fmt.Sprintf("Staged %d families (%d without thumbnail)", sum.Total, sum.Unmatched),
	})

	fmt.Printf("Staged %d families: %d with a thumbnail, %d without.\n", sum.Total, sum.Matched, sum.Unmatched)
	fmt.Println("Review them with `rvtstudio stage list`.")
	return nil
}

func runStageList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	items, err := sc.store.ListItems(ctx, sc.batch.ID, staging.ItemFilter{})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing staged. Start with `rvtstudio stage scan <dir>`.")
		return nil
	}
	unmatchedOnly, _ := cmd.Flags().GetBool("unmatched")

	fmt.Printf("%-4s %-3s %-32s %-8s %-9s %-9s %s\n", "#", "SEL", "NAME", "TIER", "THUMB", "STATUS", "CATEGORIES")
	for i, it := range items {
		if unmatchedOnly && it.Matched {
			continue
		}
		sel, thumb := " ", "missing"
		if it.Selected {
			sel = "x"
		}
		if it.Matched {
			thumb = "ok"
		}
		fmt.Printf("%-4d [%s] %-32s %-8s %-9s %-9s %s\n",
			i+1, sel, truncate(it.Name, 32), it.Freemium, thumb, it.Status, strings.Join(it.Categories, ", "))
		if it.Error != "" {
			fmt.Printf("          error: %s\n", it.Error)
		}
	}

	sum, err := sc.store.Summary(ctx, sc.batch.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nStep %d (%s): %d items, %d selected, %d imported, %d failed\n",
		sum.Step, sum.Step, sum.Total, sum.Selected, sum.Imported, sum.Failed)
	if len(sc.batch.Categories) > 0 {
		fmt.Printf("Batch categories: %s\n", strings.Join(sc.batch.Categories, ", "))
	}
	return nil
}

func runStageEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	it, err := sc.resolveItem(ctx, args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if del, _ := flags.GetBool("delete"); del {
		if err := sc.store.DeleteItem(ctx, sc.batch.ID, it.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %s.\n", it.Name)
		return nil
	}

	var patch staging.ItemPatch
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	boolean := func(name string) *bool {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetBool(name)
		return &v
	}
	patch.Name = str("name")
	patch.SKU = str("sku")
	patch.Desc = str("desc")
	patch.Freemium = str("tier")
	patch.Parametric = boolean("parametric")
	patch.NestedFamily = boolean("nested")

	if flags.Changed("add-category") || flags.Changed("remove-category") {
		add, _ := flags.GetStringSlice("add-category")
		remove, _ := flags.GetStringSlice("remove-category")
		cats := staging.AddCategories(it.Categories, add...)
		for _, c := range remove {
			cats = staging.RemoveCategory(cats, c)
		}
		patch.Categories = &cats
	}

	updated, err := sc.store.UpdateItem(ctx, sc.batch.ID, it.ID, patch)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s.\n", updated.Name)
	return nil
}

func runStageSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	if all, _ := cmd.Flags().GetBool("all"); all {
		on, err := sc.store.ToggleAll(ctx, sc.batch.ID)
		if err != nil {
			return err
		}
		if on {
			fmt.Println("Selected every pending item.")
		} else {
			fmt.Println("Cleared the selection.")
		}
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("name items to select, or pass --all")
	}

	ids := make([]string, 0, len(args))
	for _, ref := range args {
		it, err := sc.resolveItem(ctx, ref)
		if err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}
		ids = append(ids, it.ID)
	}
	off, _ := cmd.Flags().GetBool("off")
	if err := sc.store.SetSelected(ctx, sc.batch.ID, ids, !off); err != nil {
		return err
	}
	sum, err := sc.store.Summary(ctx, sc.batch.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%d of %d items selected.\n", sum.Selected, sum.Total)
	return nil
}

func runStageCategories(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	names := args
	if len(names) == 0 {
		if names, err = pickCategories(ctx, sc); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		fmt.Println("No categories chosen.")
		return nil
	}

	if err := sc.store.SetStep(ctx, sc.batch.ID, staging.StepCategories); err != nil {
		return err
	}
	n, err := sc.store.ApplyCategories(ctx, sc.batch.ID, names)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s to %d items.\n", strings.Join(staging.AddCategories(nil, names...), ", "), n)
	return nil
}

// pickCategories offers suggestions until the user chooses "done".
func pickCategories(ctx context.Context, sc *stagingContext) ([]string, error) {
	var remote []string
	if cats, err := catalogService(sc.session).ListCategories(ctx); err == nil {
		for _, c := range cats {
			remote = append(remote, c.Name)
		}
	}

	const done = "(done)"
	var chosen []string
	for {
		items := append([]string{done}, staging.Suggestions("", append(sc.batch.Categories, chosen...), remote...)...)
		sel := promptui.Select{
			Label:             "Add a category",
			Items:             items,
			Size:              12,
			StartInSearchMode: true,
			Searcher: func(input string, index int) bool {
				return strings.Contains(items[index], staging.NormalizeCategory(input))
			},
		}
		_, pick, err := sel.Run()
		if err != nil {
			return nil, fmt.Errorf("category selection: %w", err)
		}
		if pick == done {
			return chosen, nil
		}
		chosen = staging.AddCategories(chosen, pick)
	}
}

func runStageImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	concurrency := sc.cfg.MaxConcurrency
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		concurrency = n
	}
	imp := staging.NewImporter(sc.store, catalogService(sc.session),
		staging.WithConcurrency(concurrency),
		staging.WithThumbnailSize(sc.cfg.Upload.ThumbnailSize),
		staging.WithReporter(progress.NewReporter("Importing families")),
	)
	res, err := imp.Import(ctx, sc.batch.ID)
	if errors.Is(err, staging.ErrNothingSelected) {
		return fmt.Errorf("%w: use `rvtstudio stage select`", err)
	}
	if err != nil {
		return err
	}

	for id, msg := range res.Errors {
		fmt.Printf("  %s: %s\n", id, msg)
	}
	fmt.Println(res.Message)

	sc.newRecorder(sc.db).RecordChange(ctx, catalog.Change{
		Action:  "imported",
		Summary: fmt.Sprintf("Imported %d of %d families", res.Imported, res.Total),
	})
	notifications.NewDispatcher(sc.cfg.Webhooks).Dispatch(ctx, notifications.BulkEvent(
		notifications.TypeImported, "Bulk upload", res.Failed, res.Total))
	return nil
}

func runStageClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := openStaging(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	sum, err := sc.store.Summary(ctx, sc.batch.ID)
	if err != nil {
		return err
	}
	if err := sc.store.Clear(ctx, sc.batch.ID); err != nil {
		return err
	}
	fmt.Printf("Discarded %d staged items.\n", sum.Total)
	return nil
}
