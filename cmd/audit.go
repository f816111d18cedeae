package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the local audit trail of catalog changes",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().String("action", "", "only show this action (e.g. family_updated)")
	auditCmd.Flags().String("scope", "", "only show this scope: family, staging, plugin, device or account")
	auditCmd.Flags().String("record", "", "only show entries affecting this record id")
	auditCmd.Flags().Duration("since", 0, "only show entries newer than this (e.g. 24h)")
	auditCmd.Flags().Int("limit", 20, "maximum number of entries")
	auditCmd.Flags().Duration("prune", 0, "delete entries older than this instead of listing")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	store := audit.NewStore(database)
	flags := cmd.Flags()

	if prune, _ := flags.GetDuration("prune"); prune > 0 {
		n, err := store.DeleteBefore(ctx, time.Now().Add(-prune))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d entries.\n", n)
		return nil
	}

	filter := audit.QueryFilter{}
	if v, _ := flags.GetString("action"); v != "" {
		filter.Action = audit.Action(v)
	}
	if v, _ := flags.GetString("scope"); v != "" {
		filter.Scope = audit.Scope(v)
	}
	filter.AffectedRecord, _ = flags.GetString("record")
	if d, _ := flags.GetDuration("since"); d > 0 {
		since := time.Now().Add(-d)
		filter.Since = &since
	}
	filter.Limit, _ = flags.GetInt("limit")

	entries, err := store.Query(ctx, filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-18s %-8s %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Scope, e.Summary)
		if verbose {
			fmt.Printf("    actor: %s %s\n", e.ActorType, e.ActorID)
			if len(e.AffectedRecords) > 0 {
				fmt.Printf("    records: %s\n", strings.Join(e.AffectedRecords, ", "))
			}
			if e.NewValue != "" {
				fmt.Printf("    new: %s\n", e.NewValue)
			}
		}
	}
	return nil
}
