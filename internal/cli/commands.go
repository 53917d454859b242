package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				a.Close()
				return err
			}
			return a.WaitForShutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	return cmd
}

func newInitCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Store().InitSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.Config().Database.Driver)
			return nil
		},
	}
}

func newQueryCmd(g *globalOptions) *cobra.Command {
	var (
		module, output, season int
		sortBy                 string
		desc                   bool
		limit                  int
	)
	cmd := &cobra.Command{
		Use:   "query EXPRESSION",
		Short: "Run a constraint query",
		Long: `Run a constraint query such as "KEPLER_ID > 1 AND CrowdingMetric < .5".

Names resolve to catalog fields first and then to registered characteristic
types. The sky group filter applies only when module, output and season are
all given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			svc := a.Service()

			var sg *planner.SkyGroupFilter
			if types.Specified(module, output, season) {
				sg = &planner.SkyGroupFilter{CCDModule: module, CCDOutput: output, ObservingSeason: season}
			}
			var sort *types.Sort
			if sortBy != "" {
				dir := types.Ascending
				if desc {
					dir = types.Descending
				}
				sort = &types.Sort{Column: svc.ResolveColumn(ctx, sortBy), Direction: dir}
			}

			kics, err := svc.QueryText(ctx, args[0], sg, sort, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), nonNil(kics))
		},
	}
	f := cmd.Flags()
	f.IntVar(&module, "module", types.InvalidCCDModule, "CCD module of the sky group filter")
	f.IntVar(&output, "output", types.InvalidCCDOutput, "CCD output of the sky group filter")
	f.IntVar(&season, "season", types.InvalidSeason, "Observing season of the sky group filter")
	f.StringVar(&sortBy, "sort", "", "Field or characteristic type to sort by")
	f.BoolVar(&desc, "desc", false, "Sort descending")
	f.IntVar(&limit, "limit", 0, "Maximum number of results; 0 means unlimited")
	return cmd
}

func newLookupCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup KEPLER_ID...",
		Short: "Look entries up by Kepler id",
		Long:  "Look entries up by Kepler id. The output has one slot per id, null where no entry exists.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := g.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			kics, err := a.Service().RetrieveKics(ctx, ids)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), kics)
		},
	}
}

func newNearbyCmd(g *globalOptions) *cobra.Command {
	var width float64
	cmd := &cobra.Command{
		Use:   "nearby KEPLER_ID",
		Short: "List the stars in a box around a star",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := g.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			nearby, err := a.Service().RetrieveNearbyKeplerIDs(ctx, ids[0], width)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), nearby)
		},
	}
	cmd.Flags().Float64Var(&width, "width", 30, "Box width in arcseconds")
	return cmd
}

func newSnapshotCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage sky group snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Write a snapshot for every visible sky group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			cfg.Snapshot.Enabled = true
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Init(ctx); err != nil {
				return err
			}

			res, err := a.BuildSnapshots(ctx)
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "built %d snapshots, %d failed in %s\n",
					len(res.Built), len(res.Failed), res.Duration)
			}
			return err
		},
	})
	return cmd
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, len(args))
	for i, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid Kepler id %q", a)
		}
		ids[i] = id
	}
	return ids, nil
}

func nonNil(kics []*types.Kic) []*types.Kic {
	if kics == nil {
		return []*types.Kic{}
	}
	return kics
}
