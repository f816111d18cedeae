package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/mirror"
	"github.com/ziadkadry99/rvt-studio/internal/notifications"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Archive the latest installer and family files to an S3-compatible bucket",
	Long: `Copies the latest plugin installer, and with --families every family RFA
and thumbnail, to the bucket configured under mirror: in .rvtstudio.yml.
Objects that already exist in the bucket are skipped.`,
	RunE: runMirror,
}

func init() {
	mirrorCmd.Flags().Bool("families", false, "also mirror every family RFA and thumbnail")
	mirrorCmd.Flags().Int("concurrency", 0, "parallel uploads (overrides config)")
	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(cmd *cobra.Command, args []string) error {
	s, err := optionalSession()
	if err != nil {
		return err
	}
	mc := s.cfg.Mirror
	if !mc.Enabled() {
		return fmt.Errorf("mirroring is not configured: set mirror.endpoint and mirror.bucket")
	}
	ctx := cmd.Context()

	store, err := mirror.NewMinIOStore(ctx, mirror.Config{
		Endpoint:  mc.Endpoint,
		AccessKey: mc.AccessKey,
		SecretKey: mc.SecretKey,
		Bucket:    mc.Bucket,
		UseSSL:    mc.UseSSL,
	})
	if err != nil {
		return err
	}

	families, _ := cmd.Flags().GetBool("families")
	concurrency := s.cfg.MaxConcurrency
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		concurrency = n
	}
	m := mirror.New(s.client, store,
		mirror.WithFamilies(families),
		mirror.WithConcurrency(concurrency),
		mirror.WithReporter(progress.NewReporter("Mirroring")),
	)
	res, err := m.Run(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(res.Errors))
	for k := range res.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, res.Errors[k])
	}
	fmt.Println(res.Message())

	total := len(res.Uploaded) + len(res.Skipped) + res.Failed()
	if err := recordChange(ctx, s, catalog.Change{
		Action:  "mirrored",
		Summary: res.Message(),
		Payload: map[string]any{"bucket": mc.Bucket, "uploaded": res.Uploaded},
	}); err != nil {
		return err
	}
	notifications.NewDispatcher(s.cfg.Webhooks).Dispatch(ctx, notifications.BulkEvent(
		notifications.TypeMirrored, "Mirror", res.Failed(), total))
	return nil
}
