// cmd/tools/wizardctl/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"renter-wizard/internal/common/config"
	"renter-wizard/internal/common/database"
	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/models"
	"renter-wizard/internal/store/postgres"
	"renter-wizard/internal/wizard"
)

func main() {
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	surfacesCmd := flag.NewFlagSet("surfaces", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	// Migrate command flags
	migrationsDir := migrateCmd.String("dir", "migrations", "Directory holding *.sql migrations")
	configPath := migrateCmd.String("config", "", "Config file (defaults to configs/config.yaml)")

	// Surfaces command flags
	surfaceOnly := surfacesCmd.String("surface", "", "Only print this surface (desktop, mobile)")

	// Check command flags
	draftFile := checkCmd.String("file", "", "Application draft JSON file")
	checkSurface := checkCmd.String("surface", wizard.SurfaceDesktop, "Surface whose step layout groups the errors")
	minMonths := checkCmd.Int("min-months", wizard.DefaultMinResidenceMonths, "Minimum residential history in months")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		if err := runMigrate(*configPath, *migrationsDir); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}

	case "surfaces":
		surfacesCmd.Parse(os.Args[2:])
		if err := printSurfaces(os.Stdout, *surfaceOnly); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkCmd.Parse(os.Args[2:])
		if *draftFile == "" {
			fmt.Println("Error: -file is required for check.")
			checkCmd.Usage()
			os.Exit(1)
		}
		data, err := os.ReadFile(*draftFile)
		if err != nil {
			fmt.Printf("Error reading draft: %v\n", err)
			os.Exit(1)
		}
		policy := wizard.Policy{MinResidenceMonths: *minMonths, Today: time.Now()}
		ok, err := checkDraft(os.Stdout, data, *checkSurface, policy)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(2)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func runMigrate(configPath, dir string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	log := logger.NewStructured(cfg.Logging.Level, "console", "wizardctl")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}

	applied, err := postgres.Migrate(ctx, pg, os.DirFS(dir), log)
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d migration(s).\n", len(applied))
	return nil
}

// printSurfaces writes the step layout of one or every surface as JSON.
func printSurfaces(w io.Writer, only string) error {
	names := []string{wizard.SurfaceDesktop, wizard.SurfaceMobile}
	if only != "" {
		names = []string{only}
	}

	out := make([]wizard.Surface, 0, len(names))
	for _, name := range names {
		s, err := wizard.LookupSurface(name)
		if err != nil {
			return err
		}
		out = append(out, s)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// checkDraft validates every section of the draft in data and reports the
// failures grouped by the step that shows them. It returns false when any
// section fails.
func checkDraft(w io.Writer, data []byte, surfaceName string, policy wizard.Policy) (bool, error) {
	surface, err := wizard.LookupSurface(surfaceName)
	if err != nil {
		return false, err
	}

	var draft models.ApplicationDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return false, fmt.Errorf("invalid draft JSON: %w", err)
	}

	failures := wizard.ValidateAll(&draft, policy)
	if len(failures) == 0 {
		fmt.Fprintln(w, "Draft is complete.")
		return true, nil
	}

	for i, step := range surface.Steps {
		for _, section := range step.Sections {
			errs, ok := failures[section]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "step %d (%s), section %s:\n", i, step.Name, section)
			fields := make([]string, 0, len(errs))
			for field := range errs {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				fmt.Fprintf(w, "  %s: %s\n", field, errs[field])
			}
		}
	}
	return false, nil
}

func help() {
	fmt.Print(`
Usage: wizardctl <command> [flags]

Commands:
  migrate   Apply pending SQL migrations to the configured Postgres
  surfaces  Print the step layout of the wizard surfaces
  check     Validate an application draft file section by section
  help      Show this help message

Examples:
  wizardctl migrate -dir migrations
  wizardctl surfaces -surface mobile
  wizardctl check -file draft.json -surface desktop -min-months 24

Use 'wizardctl <command> -h' for more information about a command.
` + "\n")
}
