package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bloomboard/config"
	"bloomboard/internal/app"
	"bloomboard/internal/codec"
	"bloomboard/internal/model"
	"bloomboard/internal/service/habit"
	pkgconfig "bloomboard/pkg/config"
	"bloomboard/pkg/logger"
	"bloomboard/pkg/trace"
)

// cli holds the global flags and the session opened for one invocation.
type cli struct {
	configDir string
	env       string
	fragment  string
	verbose   bool

	logger  *zap.Logger
	session *app.App
	// opts are extra app options, used by tests to inject storage and clock
	opts []app.Option
}

func main() {
	if err := newRootCmd(&cli{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "bloomctl",
		Short: "Plant, water and inspect BloomBoard habits",
		Long: `bloomctl manages the BloomBoard habit collection from the terminal.

Every watering moves a habit one step toward full bloom; 21 waterings
take a fresh habit from 0 to 100.

Example:
  bloomctl plant "Meditar" --desc "5 minutos"
  bloomctl water 1760864400000
  bloomctl list --filter bloomed`,
		SilenceUsage:      true,
		PersistentPreRunE: c.open,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { c.close() },
	}

	root.PersistentFlags().StringVar(&c.configDir, "config", "config", "Config directory holding base.yaml")
	root.PersistentFlags().StringVar(&c.env, "env", pkgconfig.GetConfigEnv(), "Config environment (defaults to $APP_ENV)")
	root.PersistentFlags().StringVar(&c.fragment, "import", "", "Import fragment (#bb=...) applied before the command")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		c.plantCmd(),
		c.waterCmd(),
		c.removeCmd(),
		c.listCmd(),
		c.showCmd(),
		c.exportCmd(),
		c.mechanicsCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configDir, c.env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	c.logger = zap.NewNop()
	if c.verbose {
		c.logger = logger.NewLogger("development")
	}

	ctx := trace.WithContext(cmd.Context(), trace.GenerateTraceID())
	cmd.SetContext(ctx)

	c.session, err = app.New(ctx, cfg, c.logger, c.opts...)
	if err != nil {
		return err
	}

	// --import wins over the configured fragment; one import per invocation
	if !c.session.ImportOnce(ctx, c.fragment) && c.fragment != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "import fragment ignored: not a valid #bb= payload")
	}
	return nil
}

func (c *cli) close() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *cli) plantCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "plant [title]",
		Short: "Plant a new habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, ok := c.session.Store.Create(cmd.Context(), args[0], desc)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing planted: title is blank")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "planted %d %q\n", h.ID, h.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "Optional description")
	return cmd
}

func (c *cli) waterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "water [id]",
		Short: "Water a habit, moving it one step toward bloom",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			h, ev, ok := c.session.Store.Advance(cmd.Context(), id)
			if !ok {
				return fmt.Errorf("habit %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q now at %.1f%%\n", ev.Label, h.Title, h.Score)
			if h.Bloomed() {
				fmt.Fprintln(cmd.OutOrStdout(), "in full bloom")
			}
			return nil
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !c.session.Store.Remove(cmd.Context(), id) {
				return fmt.Errorf("habit %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", id)
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List habits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			habits := c.session.Store.List(habit.ParseFilterMode(filter))
			writeTable(cmd.OutOrStdout(), habits, c.session.Store.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all | growing | bloomed")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one habit with its watering history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			h, ok := c.session.Store.Get(id)
			if !ok {
				return fmt.Errorf("habit %d not found", id)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(model.NewHabitView(h, c.session.Store.Now().Time))
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the collection as a #bb= import fragment",
		RunE: func(cmd *cobra.Command, args []string) error {
			fragment, err := codec.Fragment(c.session.Store.List(habit.FilterAll))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fragment)
			return nil
		},
	}
}

func (c *cli) mechanicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mechanics",
		Short: "Explain how watering grows a habit",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "each watering adds %s (100/%d)\n", habit.IncrementLabel(), habit.TotalSteps)
			fmt.Fprintf(out, "%d waterings take a habit from 0 to full bloom\n", habit.TotalSteps)
			fmt.Fprintln(out, "stages: seed <10, sprout <40, sapling <70, bud <100, bloom at 100")
			return nil
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid habit id %q", raw)
	}
	return id, nil
}

var stageNames = map[int]string{
	model.StageSeed:    "seed",
	model.StageSprout:  "sprout",
	model.StageSapling: "sapling",
	model.StageBud:     "bud",
	model.StageBloom:   "bloom",
}

func writeTable(w io.Writer, habits []model.Habit, now model.Timestamp) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tSCORE\tWATERED TODAY\tTITLE")
	for _, h := range habits {
		today := ""
		if model.WateredToday(h.LastWatered, now.Time) {
			today = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%s\t%s\n",
			h.ID, stageNames[model.GrowthStage(h.Score)], h.Score, today, h.Title)
	}
	_ = tw.Flush()
}
