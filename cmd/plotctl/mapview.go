package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mxn2020/3d-community-sub001/internal/plots/geometry"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/plots/selection"
)

var statusGlyphs = map[selection.Status]string{
	selection.StatusAnchor:       "A",
	selection.StatusMember:       "S",
	selection.StatusAvailable:    "o",
	selection.StatusOwnedByOther: "X",
	selection.StatusInaccessible: "-",
	selection.StatusBlocked:      "!",
}

var legendOrder = []selection.Status{
	selection.StatusAnchor,
	selection.StatusMember,
	selection.StatusAvailable,
	selection.StatusOwnedByOther,
	selection.StatusInaccessible,
	selection.StatusBlocked,
}

func newMapCmd(g *globalOptions) *cobra.Command {
	var (
		anchorID string
		viewerID string
		selected []string
	)
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Render the selection state of every parcel around an anchor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := g.lookup(cmd.Context(), anchorID)
			if err != nil {
				return err
			}
			universe := u.All()
			s, err := selection.Open(u.Anchor.ID, universe, viewerID)
			if err != nil {
				return err
			}
			for _, id := range selected {
				res, err := s.Toggle(id, universe, viewerID)
				if err != nil {
					return err
				}
				if !res.Success {
					fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %s\n", id, res.Reason)
				}
			}
			views, err := s.Views(universe, viewerID)
			if err != nil {
				return err
			}
			renderMap(cmd.OutOrStdout(), s.State(), universe, views)
			return nil
		},
	}
	cmd.Flags().StringVarP(&anchorID, "anchor", "a", "", "anchor parcel the session opens on")
	cmd.Flags().StringVarP(&viewerID, "viewer", "v", "", "viewer id; parcels the viewer owns are not foreign")
	cmd.Flags().StringSliceVarP(&selected, "select", "s", nil, "parcels to toggle before rendering (comma separated, applied in order)")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}

func renderMap(w io.Writer, st selection.State, universe []parcel.Parcel, views []selection.View) {
	r := lipgloss.NewRenderer(w)
	styles := map[selection.Status]lipgloss.Style{
		selection.StatusAnchor:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")),
		selection.StatusMember:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")),
		selection.StatusAvailable:    r.NewStyle().Foreground(lipgloss.Color("14")),
		selection.StatusOwnedByOther: r.NewStyle().Foreground(lipgloss.Color("9")),
		selection.StatusInaccessible: r.NewStyle().Foreground(lipgloss.Color("8")),
		selection.StatusBlocked:      r.NewStyle().Foreground(lipgloss.Color("13")),
	}
	titleStyle := r.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle := r.NewStyle().Foreground(lipgloss.Color("8"))

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("anchor %s  %s  %d/%d selected",
		st.AnchorID, st.Orientation, len(st.MemberIDs), selection.MaxPlots)))
	fmt.Fprintln(w)

	for _, row := range glyphGrid(universe, views) {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			if c.status == "" {
				cells = append(cells, dimStyle.Render(" · "))
				continue
			}
			cells = append(cells, styles[c.status].Render(" "+statusGlyphs[c.status]+" "))
		}
		fmt.Fprintln(w, strings.Join(cells, ""))
	}
	fmt.Fprintln(w)

	legend := make([]string, 0, len(legendOrder))
	for _, ls := range legendOrder {
		legend = append(legend, styles[ls].Render(statusGlyphs[ls])+" "+string(ls))
	}
	fmt.Fprintln(w, dimStyle.Render("legend: ")+strings.Join(legend, "  "))

	for _, v := range views {
		if v.Status == selection.StatusAvailable && len(v.WouldAutoAdd) > 0 {
			fmt.Fprintf(w, "%s would also add %s\n", v.ID, strings.Join(v.WouldAutoAdd, ","))
		}
		if len(v.BlockedBy) > 0 {
			fmt.Fprintf(w, "%s blocked by %s\n", v.ID, strings.Join(v.BlockedBy, ","))
		}
	}
}

type gridCell struct {
	id     string
	status selection.Status
}

// glyphGrid lays the universe out on its distinct x/y lines: rows run from the largest
// y down, columns from the smallest x across. Positions without a parcel stay empty.
func glyphGrid(universe []parcel.Parcel, views []selection.View) [][]gridCell {
	status := make(map[string]selection.Status, len(views))
	for _, v := range views {
		status[v.ID] = v.Status
	}
	xs := make([]float64, 0, len(universe))
	ys := make([]float64, 0, len(universe))
	for _, p := range universe {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	cols := distinct(xs)
	rows := distinct(ys)

	grid := make([][]gridCell, len(rows))
	for i := range grid {
		grid[i] = make([]gridCell, len(cols))
	}
	for _, p := range universe {
		r := len(rows) - 1 - lineIndex(rows, p.Y)
		c := lineIndex(cols, p.X)
		grid[r][c] = gridCell{id: p.ID, status: status[p.ID]}
	}
	return grid
}

func distinct(vals []float64) []float64 {
	sort.Float64s(vals)
	var out []float64
	for _, v := range vals {
		if len(out) == 0 || !geometry.Same(out[len(out)-1], v) {
			out = append(out, v)
		}
	}
	return out
}

func lineIndex(lines []float64, v float64) int {
	for i, l := range lines {
		if geometry.Same(l, v) {
			return i
		}
	}
	return len(lines) - 1
}
