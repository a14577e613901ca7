package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mxn2020/3d-community-sub001/internal/community"
)

func newSeedCmd(g *globalOptions) *cobra.Command {
	var communityID string
	cmd := &cobra.Command{
		Use:   "seed MAP.yaml",
		Short: "Load a community map into the parcel store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := community.Load(args[0])
			if err != nil {
				return err
			}
			id := m.ID
			if strings.TrimSpace(communityID) != "" {
				id = strings.TrimSpace(communityID)
			}
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.UpsertParcels(cmd.Context(), id, m.Plots); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d parcels into %s (%s)\n", len(m.Plots), id, g.dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&communityID, "id", "", "community id to store the parcels under (defaults to the map's id)")
	return cmd
}

func newAssignCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign PARCEL [OWNER]",
		Short: "Record a sale of PARCEL to OWNER, or release it when OWNER is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := ""
			if len(args) == 2 {
				owner = args[1]
			}
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetOwner(cmd.Context(), args[0], owner); err != nil {
				return err
			}
			if owner == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s released\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], owner)
			}
			return nil
		},
	}
	return cmd
}

func newEventsCmd(g *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events ANCHOR",
		Short: "List the selection events recorded for sessions opened on ANCHOR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			events, err := store.SelectionEvents(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no selection events for %s\n", args[0])
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Time", "Session", "Kind", "Parcel", "Action", "Outcome", "Members"})
			table.SetBorder(false)
			table.SetCenterSeparator("")
			table.SetAutoWrapText(false)
			for _, e := range events {
				out := "ok"
				if !e.Success {
					out = e.Reason
				}
				if len(e.Dropped) > 0 {
					out += " dropped=" + strings.Join(e.Dropped, ",")
				}
				table.Append([]string{e.Time, e.SessionID, e.Kind, e.ParcelID, e.Action, out, strings.Join(e.Members, ",")})
			}
			table.SetFooter([]string{"", "", "", "", "", "Total", strconv.Itoa(len(events))})
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of events to list")
	return cmd
}
