package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mxn2020/3d-community-sub001/internal/audit"
	"github.com/mxn2020/3d-community-sub001/internal/community"
	persistlog "github.com/mxn2020/3d-community-sub001/internal/persistence/log"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/plots/selection"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
)

func main() {
	var (
		selDir  = flag.String("selections", "./data/selections", "dir containing selections-*.jsonl.zst")
		mapPath = flag.String("community", "", "community map to re-run recorded toggles against (optional)")
		reach   = flag.Float64("reach", 36, "adjacency reach the server used")
	)
	flag.Parse()

	files, err := listSelectionFiles(*selDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list selections:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no selection files found in", *selDir)
		os.Exit(1)
	}
	var events []audit.Event
	for _, path := range files {
		es, err := persistlog.ReadSelections(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		events = append(events, es...)
	}

	sum := summarize(events)
	fmt.Printf("selections files=%d events=%d sessions=%d toggles=%d accepted=%d\n",
		len(files), len(events), sum.sessions, sum.toggles, sum.accepted)
	for _, r := range sortedKeys(sum.rejected) {
		fmt.Printf("  rejected %-32s %d\n", r, sum.rejected[r])
	}

	if *mapPath == "" {
		return
	}
	m, err := community.Load(*mapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load community:", err)
		os.Exit(1)
	}
	rep := verify(context.Background(), events, m.Source(*reach))
	for _, mm := range rep.mismatches {
		fmt.Fprintln(os.Stderr, "mismatch:", mm)
	}
	if len(rep.mismatches) > 0 {
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d toggles (skipped=%d)\n", rep.checked, rep.skipped)
}

func listSelectionFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "selections-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

type summary struct {
	sessions int
	toggles  int
	accepted int
	rejected map[string]int
}

func summarize(events []audit.Event) summary {
	s := summary{rejected: map[string]int{}}
	for _, e := range events {
		switch e.Kind {
		case audit.KindOpen:
			s.sessions++
		case audit.KindToggle:
			s.toggles++
			if e.Success {
				s.accepted++
			} else {
				s.rejected[e.Reason]++
			}
		}
	}
	return s
}

type replayedSession struct {
	session  *selection.Session
	universe []parcel.Parcel
	diverged bool
}

type report struct {
	checked    int
	skipped    int
	mismatches []string
}

// verify re-runs every recorded toggle against src and compares outcomes. A session
// stops being checked after its first mismatch or after a revalidation that dropped
// members, since its state no longer follows from src alone.
func verify(ctx context.Context, events []audit.Event, src provider.Source) report {
	var rep report
	sessions := map[string]*replayedSession{}
	fetch := provider.Fetcher{Source: src}

	for _, e := range events {
		switch e.Kind {
		case audit.KindOpen:
			u, err := fetch.Lookup(ctx, e.AnchorID)
			if err != nil {
				rep.mismatches = append(rep.mismatches, fmt.Sprintf("%s: open %s: %v", e.SessionID, e.AnchorID, err))
				sessions[e.SessionID] = &replayedSession{diverged: true}
				continue
			}
			sess, err := selection.Open(u.Anchor.ID, u.All(), e.ViewerID)
			if err != nil {
				rep.mismatches = append(rep.mismatches, fmt.Sprintf("%s: %v", e.SessionID, err))
				sessions[e.SessionID] = &replayedSession{diverged: true}
				continue
			}
			sessions[e.SessionID] = &replayedSession{session: sess, universe: u.All()}

		case audit.KindToggle:
			rs := sessions[e.SessionID]
			if rs == nil || rs.diverged {
				rep.skipped++
				continue
			}
			res, err := rs.session.Toggle(e.ParcelID, rs.universe, e.ViewerID)
			if err != nil {
				rep.mismatches = append(rep.mismatches, fmt.Sprintf("%s: toggle %s: %v", e.SessionID, e.ParcelID, err))
				rs.diverged = true
				continue
			}
			rep.checked++
			if diff := compare(res, rs.session.Members(), e); diff != "" {
				rep.mismatches = append(rep.mismatches, fmt.Sprintf("%s: toggle %s at %s: %s", e.SessionID, e.ParcelID, e.Time, diff))
				rs.diverged = true
			}

		case audit.KindRevalidate:
			if rs := sessions[e.SessionID]; rs != nil && len(e.Dropped) > 0 {
				rs.diverged = true
			}

		case audit.KindClose:
			delete(sessions, e.SessionID)
		}
	}
	return rep
}

func compare(res selection.Result, members []string, e audit.Event) string {
	switch {
	case res.Success != e.Success || string(res.Reason) != e.Reason:
		return fmt.Sprintf("outcome got=%s want=%s", outcomeOf(res.Success, string(res.Reason)), outcomeOf(e.Success, e.Reason))
	case strings.Join(res.AutoAdded, ",") != strings.Join(e.AutoAdded, ","):
		return fmt.Sprintf("auto_added got=%v want=%v", res.AutoAdded, e.AutoAdded)
	case strings.Join(members, ",") != strings.Join(e.Members, ","):
		return fmt.Sprintf("members got=%v want=%v", members, e.Members)
	}
	return ""
}

func outcomeOf(success bool, reason string) string {
	if success {
		return "ok"
	}
	return reason
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
