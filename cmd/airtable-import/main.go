package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lingoria/school-ops-api/internal/importer"
	"github.com/lingoria/school-ops-api/internal/repository"
	"github.com/lingoria/school-ops-api/pkg/config"
	"github.com/lingoria/school-ops-api/pkg/database"
	"github.com/lingoria/school-ops-api/pkg/logger"
)

func main() {
	clean := flag.Bool("clean", false, "empty the target tables before importing (asks for confirmation)")
	forceClean := flag.Bool("force-clean", false, "empty the target tables without confirmation")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Airtable.APIKey == "" || cfg.Airtable.BaseID == "" {
		log.Fatal("AIRTABLE_API_KEY and AIRTABLE_BASE_ID must be set")
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	doClean := *forceClean
	if *clean && !*forceClean {
		fmt.Printf("This will DELETE all rows from the target tables in %s. Continue? [y/N] ", cfg.Database.Name)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "y" {
			fmt.Println("aborted")
			return
		}
		doClean = true
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	imp := importer.NewImporter(
		importer.NewAirtableClient(cfg.Airtable.BaseID, cfg.Airtable.APIKey, logr),
		db,
		repository.NewLevelRepository(db),
		repository.NewStudentRepository(db),
		repository.NewTeacherRepository(db),
		repository.NewProductRepository(db),
		repository.NewCohortRepository(db),
		repository.NewWeeklySessionRepository(db),
		repository.NewEnrollmentRepository(db),
		logr,
	)

	report, err := imp.Run(context.Background(), importer.Options{Clean: doClean})
	if err != nil {
		logr.Sugar().Fatalw("import failed", "error", err)
	}

	fmt.Println("import finished")
	for table, count := range report.Inserted {
		fmt.Printf("  %-16s %d\n", table, count)
	}
	fmt.Printf("  skipped          %d\n", report.Skipped)
	if len(report.Warnings) > 0 {
		fmt.Printf("warnings (%d):\n", len(report.Warnings))
		for _, w := range report.Warnings {
			fmt.Println("  " + w)
		}
	}
}
