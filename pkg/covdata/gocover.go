package covdata

import (
	"fmt"
	"io"
	"sort"

	"golang.org/x/tools/cover"

	"github.com/dkoosis/buildgate/pkg/coverage"
)

type blockKey struct {
	startLine, startCol, endLine, endCol int
}

type blockState struct {
	stmts   int
	covered bool
}

// profileSet merges Go cover profiles block by block. A block is covered if
// any run executed it.
type profileSet struct {
	files map[string]map[blockKey]*blockState
}

func newProfileSet() *profileSet {
	return &profileSet{files: make(map[string]map[blockKey]*blockState)}
}

func (s *profileSet) add(profiles []*cover.Profile) {
	for _, p := range profiles {
		blocks, ok := s.files[p.FileName]
		if !ok {
			blocks = make(map[blockKey]*blockState)
			s.files[p.FileName] = blocks
		}
		for _, b := range p.Blocks {
			k := blockKey{b.StartLine, b.StartCol, b.EndLine, b.EndCol}
			st, ok := blocks[k]
			if !ok {
				st = &blockState{stmts: b.NumStmt}
				blocks[k] = st
			}
			if b.Count > 0 {
				st.covered = true
			}
		}
	}
}

// records converts merged blocks into one record per file carrying STATEMENT
// and LINE counters. A line is covered if any covering block executed.
func (s *profileSet) records() []coverage.Record {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]coverage.Record, 0, len(names))
	for _, name := range names {
		var stmts coverage.Counter
		lines := make(map[int]bool)
		for k, st := range s.files[name] {
			stmts.Total += int64(st.stmts)
			if st.covered {
				stmts.Covered += int64(st.stmts)
			}
			for l := k.startLine; l <= k.endLine; l++ {
				lines[l] = lines[l] || st.covered
			}
		}
		var lc coverage.Counter
		for _, covered := range lines {
			lc.Total++
			if covered {
				lc.Covered++
			}
		}
		out = append(out, coverage.Record{
			Path: name,
			Counters: map[coverage.Metric]coverage.Counter{
				coverage.Statement: stmts,
				coverage.Line:      lc,
			},
		})
	}
	return out
}

func parseGoCover(r io.Reader) ([]*cover.Profile, error) {
	profiles, err := cover.ParseProfilesFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing cover profile: %w", err)
	}
	return profiles, nil
}
