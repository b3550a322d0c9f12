// Command jobs runs offline maintenance against the licensing store through
// the same service layer the HTTP server uses. Every job is a dry run
// unless -apply is passed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/forgeapps/licensing-backend/internal/config"
	"github.com/forgeapps/licensing-backend/internal/database"
	"github.com/forgeapps/licensing-backend/internal/logging"
	"github.com/forgeapps/licensing-backend/internal/services"
)

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "dedupe":
		err = runDedupe(os.Args[2:])
	case "migrate-legacy":
		err = runMigrateLegacy(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("job failed", "job", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: jobs <dedupe|migrate-legacy> [-apply]")
}

// runDedupe prints the keep/archive/fix plan for all customers and, with
// -apply, flips the archive flags and device counts. Archival never deletes.
func runDedupe(args []string) error {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	apply := fs.Bool("apply", false, "mutate the store; default is dry run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plan, err := services.PlanDedupeAll(database.DB)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !*apply {
		slog.Info("dry run; pass -apply to archive and fix",
			"keep", len(plan.Keep), "archive", len(plan.Archive), "fix_devices", len(plan.FixDevices))
		return nil
	}

	result := services.ApplyDedupePlan(database.DB, plan)
	for _, e := range result.Errors {
		slog.Error("dedupe record failed", "error", e)
	}
	slog.Info("dedupe applied",
		"archived", result.Archived, "fixed", result.Fixed, "failed", len(result.Errors))
	return nil
}

// runMigrateLegacy derives entitlements from legacy license keys. Keys
// without a resolvable customer are reported, never silently dropped.
func runMigrateLegacy(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("migrate-legacy", flag.ExitOnError)
	apply := fs.Bool("apply", false, "mutate the store; default is dry run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prices := services.NewPriceResolver(cfg.PriceTierMap, cfg.PriceCacheTTL)
	entitlements := services.NewEntitlementService(database.DB, prices, cfg.FoundersCutoff)

	if !*apply {
		candidates, errs, err := entitlements.PlanLegacyMigration()
		if err != nil {
			return err
		}
		for _, lk := range candidates {
			fmt.Printf("would migrate %s (type=%s, created=%s)\n",
				lk.Key, lk.Type, lk.CreatedAt.Format("2006-01-02"))
		}
		for _, e := range errs {
			slog.Error("migration candidate failed", "error", e)
		}
		slog.Info("dry run; pass -apply to migrate",
			"candidates", len(candidates), "failed", len(errs))
		return nil
	}

	report, err := entitlements.MigrateAllLegacyKeys()
	if err != nil {
		return err
	}
	for _, e := range report.Errors {
		slog.Error("key migration failed", "error", e)
	}
	slog.Info("migration applied",
		"migrated", report.Migrated, "skipped", report.Skipped, "failed", len(report.Errors))
	return nil
}
