package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:     "plugins",
	Aliases: []string{"plugin"},
	Short:   "Browse and download ProRVT plugin releases",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugin releases, newest first",
	RunE:  runPluginsList,
}

var pluginsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the latest release",
	RunE:  runPluginsLatest,
}

var pluginsDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a plugin installer",
	RunE:  runPluginsDownload,
}

var pluginsRequirementsCmd = &cobra.Command{
	Use:   "requirements",
	Short: "Print the plugin system requirements",
	Run: func(cmd *cobra.Command, args []string) {
		printRequirements()
	},
}

var pluginsQRCmd = &cobra.Command{
	Use:   "qr",
	Short: "Print a QR code image URL for the plugin site",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		target, _ := cmd.Flags().GetString("url")
		if target == "" {
			target = cfg.Plugin.SiteURL
		}
		if target == "" {
			return fmt.Errorf("no site URL: pass --url or set plugin.site_url")
		}
		fmt.Println(plugins.QRCodeURL(target))
		return nil
	},
}

var pluginsChangelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Print release notes, or write them as an HTML page",
	RunE:  runPluginsChangelog,
}

func init() {
	pluginsListCmd.Flags().String("search", "", "filter by installer file name")
	pluginsDownloadCmd.Flags().String("version", "", "version to download (default: latest)")
	pluginsDownloadCmd.Flags().StringP("output", "o", ".", "destination file or directory")
	pluginsQRCmd.Flags().String("url", "", "URL to encode (default: plugin.site_url)")
	pluginsChangelogCmd.Flags().String("html", "", "write an HTML changelog page to this file")

	pluginsCmd.AddCommand(pluginsListCmd, pluginsLatestCmd, pluginsDownloadCmd,
		pluginsRequirementsCmd, pluginsQRCmd, pluginsChangelogCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func runPluginsList(cmd *cobra.Command, args []string) error {
	s, err := optionalSession()
	if err != nil {
		return err
	}
	releases, err := plugins.NewService(s.client).List(cmd.Context())
	if err != nil {
		return err
	}
	search, _ := cmd.Flags().GetString("search")
	releases = plugins.Search(releases, search)
	if len(releases) == 0 {
		fmt.Println("No plugin releases found.")
		return nil
	}

	fmt.Printf("%-10s %-32s %-14s %s\n", "VERSION", "FILE", "CREATED", "SIZE")
	for _, r := range releases {
		created := r.CreatedAt
		if created == "" {
			created = r.Created
		}
		fmt.Printf("%-10s %-32s %-14s %s\n", r.Version, r.FriendlyFileName(), plugins.FormatDate(created), r.SizeLabel())
	}
	return nil
}

func runPluginsLatest(cmd *cobra.Command, args []string) error {
	s, err := optionalSession()
	if err != nil {
		return err
	}
	svc := plugins.NewService(s.client)
	r, err := svc.Latest(cmd.Context())
	if errors.Is(err, plugins.ErrNoReleases) {
		fmt.Println("No plugin releases have been published.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(plugins.Banner(r, time.Now()))
	fmt.Println()
	fmt.Printf("File:     %s\n", r.FriendlyFileName())
	fmt.Printf("Size:     %s\n", r.SizeLabel())
	fmt.Printf("Download: %s\n", svc.InstallerURL(r))
	return nil
}

func printRequirements() {
	fmt.Println("System requirements:")
	for _, req := range plugins.SystemRequirements {
		fmt.Printf("  - %s\n", req)
	}
}

func runPluginsDownload(cmd *cobra.Command, args []string) error {
	s, err := optionalSession()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc := plugins.NewService(s.client)

	version, _ := cmd.Flags().GetString("version")
	var r *plugins.Release
	if version == "" {
		r, err = svc.Latest(ctx)
	} else {
		r, err = svc.Find(ctx, version)
	}
	if err != nil {
		return err
	}

	dest, _ := cmd.Flags().GetString("output")
	path, n, err := svc.Download(ctx, r, dest, os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%d bytes).\n", path, n)

	return recordChange(ctx, s, catalog.Change{
		Action:   "plugin_downloaded",
		RecordID: r.ID,
		Summary:  fmt.Sprintf("Downloaded plugin %s", r.Version),
	})
}

func runPluginsChangelog(cmd *cobra.Command, args []string) error {
	s, err := optionalSession()
	if err != nil {
		return err
	}
	releases, err := plugins.NewService(s.client).List(cmd.Context())
	if err != nil {
		return err
	}

	if out, _ := cmd.Flags().GetString("html"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		if err := plugins.WriteChangelogPage(f, releases); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Changelog written to %s\n", out)
		return nil
	}

	for _, r := range releases {
		fmt.Printf("v%s  (%s)\n", r.Version, plugins.FormatDate(r.Created))
		if r.Updates == "" {
			fmt.Println("  No release notes.")
		} else {
			fmt.Println(r.Updates)
		}
		fmt.Println()
	}
	return nil
}
