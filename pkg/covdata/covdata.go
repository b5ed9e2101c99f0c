// Package covdata loads coverage records from Go cover profiles, JaCoCo XML
// reports and buildgate records JSON.
package covdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/cover"

	"github.com/dkoosis/buildgate/internal/detect"
	"github.com/dkoosis/buildgate/pkg/coverage"
)

// ErrUnknownFormat is returned for inputs that are not a supported coverage
// format.
var ErrUnknownFormat = errors.New("unrecognized coverage format")

const readLimit = 8

// Input is the parsed content of one coverage document.
type Input struct {
	profiles []*cover.Profile
	records  []coverage.Record
}

// Load reads every path concurrently and merges the results into a single
// path-sorted record set. Go profiles for the same file are merged block by
// block; other duplicate records merge by the per-metric maximum.
func Load(ctx context.Context, paths ...string) ([]coverage.Record, error) {
	inputs := make([]Input, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readLimit)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading coverage input: %w", err)
			}
			in, err := Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			inputs[i] = in
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(inputs), nil
}

// Parse decodes one coverage document of any supported format.
func Parse(data []byte) (Input, error) {
	switch f := detect.Sniff(data); f {
	case detect.GoCoverProfile:
		profiles, err := parseGoCover(bytes.NewReader(data))
		return Input{profiles: profiles}, err
	case detect.JaCoCoXML:
		recs, err := parseJaCoCo(bytes.NewReader(data))
		return Input{records: recs}, err
	case detect.RecordsJSON:
		recs, err := parseRecords(bytes.NewReader(data))
		return Input{records: recs}, err
	default:
		return Input{}, fmt.Errorf("%w (detected %s)", ErrUnknownFormat, f)
	}
}

// Records returns the records of a single parsed input.
func (in Input) Records() []coverage.Record {
	return merge([]Input{in})
}

func merge(inputs []Input) []coverage.Record {
	profiles := newProfileSet()
	byPath := make(map[string]coverage.Record)
	for _, in := range inputs {
		profiles.add(in.profiles)
		for _, r := range in.records {
			existing, ok := byPath[r.Path]
			if !ok {
				byPath[r.Path] = clone(r)
				continue
			}
			byPath[r.Path] = maxMerge(existing, r)
		}
	}
	for _, r := range profiles.records() {
		if existing, ok := byPath[r.Path]; ok {
			byPath[r.Path] = maxMerge(existing, r)
			continue
		}
		byPath[r.Path] = r
	}

	out := make([]coverage.Record, 0, len(byPath))
	for _, r := range byPath {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func clone(r coverage.Record) coverage.Record {
	c := coverage.Record{Path: r.Path, Source: r.Source, Counters: make(map[coverage.Metric]coverage.Counter, len(r.Counters))}
	for m, v := range r.Counters {
		c.Counters[m] = v
	}
	return c
}

// maxMerge takes the larger covered and total per metric. a is modified.
func maxMerge(a, b coverage.Record) coverage.Record {
	if a.Source == "" {
		a.Source = b.Source
	}
	for m, bc := range b.Counters {
		ac := a.Counters[m]
		a.Counters[m] = coverage.Counter{
			Covered: max(ac.Covered, bc.Covered),
			Total:   max(ac.Total, bc.Total),
		}
	}
	return a
}
