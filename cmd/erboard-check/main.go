// erboard-check prints the shared bed table and reports rows that break the
// board's invariants. Apart from `migrate` every command is read-only.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wisefido-erboard/internal/common/database"
	"wisefido-erboard/internal/config"
	"wisefido-erboard/internal/models"
	"wisefido-erboard/internal/repository"
	"wisefido-erboard/internal/scheduler"
)

// errProblems 审计发现问题时返回，进程以 2 退出
var errProblems = errors.New("audit found problems")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errProblems) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "erboard-check",
		Short:        "Inspect the shared ER bed table",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("sections", "", "Comma separated sections (default BOARD_SECTIONS, empty = all)")

	rootCmd.AddCommand(bedsCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func bedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "beds",
		Short: "Print every bed row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *repository.PostgresBedStore, sections []string) error {
				beds, err := store.FetchBySections(ctx, sections)
				if err != nil {
					return fmt.Errorf("query beds: %w", err)
				}
				printBeds(cmd.OutOrStdout(), beds)
				return nil
			})
		},
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report rows that break occupancy, order or roster invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *repository.PostgresBedStore, sections []string) error {
				beds, err := store.FetchBySections(ctx, sections)
				if err != nil {
					return fmt.Errorf("query beds: %w", err)
				}
				clinicians, err := store.ListActiveClinicians(ctx)
				if err != nil {
					return fmt.Errorf("query clinicians: %w", err)
				}

				out := cmd.OutOrStdout()
				printBeds(out, beds)
				problems := audit(beds, clinicians)
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.Repeat("=", 80))
				fmt.Fprintf(out, "%d problem(s) found\n", len(problems))
				fmt.Fprintln(out, strings.Repeat("=", 80))
				for _, p := range problems {
					fmt.Fprintln(out, "  - "+p)
				}
				if len(problems) > 0 {
					return errProblems
				}
				return nil
			})
		},
	}
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Print the derived task queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctor, _ := cmd.Flags().GetString("doctor")
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *repository.PostgresBedStore, sections []string) error {
				beds, err := store.FetchBySections(ctx, sections)
				if err != nil {
					return fmt.Errorf("query beds: %w", err)
				}
				tasks := scheduler.Derive(beds, time.Now(), cfg.Thresholds())
				tasks = scheduler.Filter{DoctorID: doctor}.Apply(tasks)
				printTasks(cmd.OutOrStdout(), tasks)
				return nil
			})
		},
	}
	cmd.Flags().String("doctor", "", "Only tasks of beds assigned to this clinician")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the board tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.NewPostgresDB(&cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close(db)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := repository.EnsureSchema(ctx, db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

type storeFunc func(ctx context.Context, cfg *config.Config, store *repository.PostgresBedStore, sections []string) error

// withStore 加载配置、连接数据库并执行 fn
func withStore(cmd *cobra.Command, fn storeFunc) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sections := cfg.Board.Sections
	if raw, _ := cmd.Flags().GetString("sections"); raw != "" {
		sections = splitSections(raw)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	return fn(ctx, cfg, repository.NewPostgresBedStore(db, zap.NewNop()), sections)
}

func splitSections(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printBeds(w io.Writer, beds []models.Bed) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "er_beds")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%-36s %-8s %-8s %-14s %-12s %-20s %-8s\n",
		"bed_id", "label", "section", "status", "doctor", "patient", "version")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, b := range beds {
		patient := "-"
		if b.Patient != nil {
			patient = fmt.Sprintf("%s (T%d)", b.Patient.Name, b.Patient.TriageCategory)
		}
		doctor := b.AssignedDoctorID
		if doctor == "" {
			doctor = "-"
		}
		fmt.Fprintf(w, "%-36s %-8s %-8s %-14s %-12s %-20s %-8d\n",
			b.ID, b.Label, b.Section, b.Status, doctor, patient, b.Version)
	}
}

func printTasks(w io.Writer, tasks []models.DerivedTask) {
	fmt.Fprintf(w, "%-8s %-16s %-8s %-30s %-20s %s\n", "flags", "kind", "bed", "title", "timestamp", "doctor")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, t := range tasks {
		flags := ""
		if t.IsOverdue {
			flags += "O"
		}
		if t.IsUrgent {
			flags += "U"
		}
		if flags == "" {
			flags = "-"
		}
		fmt.Fprintf(w, "%-8s %-16s %-8s %-30s %-20s %s\n",
			flags, t.Kind, t.BedLabel, t.Title, t.Timestamp.Format("2006-01-02 15:04"), t.DoctorID)
	}
	fmt.Fprintf(w, "%d task(s)\n", len(tasks))
}

// audit 检查每一行的不变量
func audit(beds []models.Bed, clinicians []models.Clinician) []string {
	active := make(map[string]bool, len(clinicians))
	for _, c := range clinicians {
		if c.Active {
			active[c.ID] = true
		}
	}

	var problems []string
	for _, b := range beds {
		if err := b.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if b.AssignedDoctorID != "" && !active[b.AssignedDoctorID] {
			problems = append(problems, fmt.Sprintf("bed %s: doctor %s is not on the active roster", b.ID, b.AssignedDoctorID))
		}
		if b.Patient == nil {
			continue
		}
		p := b.Patient
		if p.TriageCategory < 1 || p.TriageCategory > 5 {
			problems = append(problems, fmt.Sprintf("bed %s: triage category %d out of range", b.ID, p.TriageCategory))
		}
		for _, m := range p.Medications {
			given := m.Status == models.MedicationGiven
			if given != (m.AdministeredAt != nil) {
				problems = append(problems, fmt.Sprintf("bed %s: medication %s is %s but administered_at set=%t", b.ID, m.ID, m.Status, m.AdministeredAt != nil))
			}
		}
		for _, a := range p.Actions {
			if a.IsCompleted != (a.CompletedAt != nil) {
				problems = append(problems, fmt.Sprintf("bed %s: action %s completed=%t but completed_at set=%t", b.ID, a.ID, a.IsCompleted, a.CompletedAt != nil))
			}
		}
	}
	return problems
}
