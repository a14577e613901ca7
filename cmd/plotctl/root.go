package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mxn2020/3d-community-sub001/internal/community"
	"github.com/mxn2020/3d-community-sub001/internal/persistence/indexdb"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dbPath        string
	communityPath string
	reach         float64
	timeout       time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "plotctl",
		Short: "Inspect and exercise contiguous plot selection",
		Long: `plotctl drives the plot selection engine outside the server.

Lookups read the sqlite parcel store (--db) unless a community map is given
with --community, in which case the map is used directly and nothing is written.`,
		SilenceUsage: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.dbPath, "db", "./data/plots.db", "sqlite parcel store")
	pf.StringVarP(&g.communityPath, "community", "c", "", "community map (YAML) to read parcels from instead of the store")
	pf.Float64Var(&g.reach, "reach", 36, "adjacency reach around the anchor")
	pf.DurationVar(&g.timeout, "timeout", 3*time.Second, "universe lookup timeout")

	cmd.AddCommand(
		newSimulateCmd(g),
		newMapCmd(g),
		newSeedCmd(g),
		newAssignCmd(g),
		newEventsCmd(g),
	)
	return cmd
}

func (g *globalOptions) openStore() (*indexdb.SQLiteStore, error) {
	return indexdb.OpenSQLite(g.dbPath, indexdb.WithReach(g.reach))
}

// lookup fetches the universe of anchorID from the community map or the store.
func (g *globalOptions) lookup(ctx context.Context, anchorID string) (provider.Universe, error) {
	var src provider.Source
	if g.communityPath != "" {
		m, err := community.Load(g.communityPath)
		if err != nil {
			return provider.Universe{}, err
		}
		src = m.Source(g.reach)
	} else {
		store, err := g.openStore()
		if err != nil {
			return provider.Universe{}, err
		}
		defer store.Close()
		src = store
	}
	return provider.Fetcher{Source: src, Timeout: g.timeout}.Lookup(ctx, anchorID)
}
