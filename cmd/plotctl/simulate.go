package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mxn2020/3d-community-sub001/internal/plots/selection"
)

const simulateLongDescription = `Open a selection session on --anchor and toggle each PARCEL in order,
printing one table row per step. Rejected toggles leave the selection unchanged
and the replay continues.

Example:
  plotctl simulate -c configs/community.yaml --anchor MG-00-00 MG-02-00 MG-01-00`

func newSimulateCmd(g *globalOptions) *cobra.Command {
	var (
		anchorID string
		viewerID string
		preview  bool
	)
	cmd := &cobra.Command{
		Use:   "simulate PARCEL...",
		Short: "Replay a sequence of toggles and print each outcome",
		Long:  simulateLongDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := g.lookup(cmd.Context(), anchorID)
			if err != nil {
				return err
			}
			universe := u.All()
			s, err := selection.Open(u.Anchor.ID, universe, viewerID)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Step", "Parcel", "Action", "Outcome", "Auto-added", "Members"})
			table.SetBorder(false)
			table.SetCenterSeparator("")
			table.SetAutoWrapText(false)

			for i, id := range args {
				var res selection.Result
				if preview {
					res, err = s.Preview(id, universe, viewerID)
				} else {
					res, err = s.Toggle(id, universe, viewerID)
				}
				if err != nil {
					return fmt.Errorf("step %d (%s): %w", i+1, id, err)
				}
				table.Append([]string{
					strconv.Itoa(i + 1),
					id,
					string(res.Action),
					outcome(res),
					orDash(res.AutoAdded),
					strings.Join(s.Members(), ","),
				})
			}
			table.SetFooter([]string{"", "", "", "", s.Orientation().String(), fmt.Sprintf("%d/%d", s.Len(), selection.MaxPlots)})
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&anchorID, "anchor", "a", "", "anchor parcel the session opens on")
	cmd.Flags().StringVarP(&viewerID, "viewer", "v", "", "viewer id; parcels the viewer owns are not foreign")
	cmd.Flags().BoolVar(&preview, "preview", false, "preview each toggle without applying it")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}

func outcome(res selection.Result) string {
	if res.Success {
		return "ok"
	}
	return string(res.Reason)
}

func orDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}
