package covdata

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/dkoosis/buildgate/pkg/coverage"
)

type jacocoCounter struct {
	Type    string `xml:"type,attr"`
	Missed  int64  `xml:"missed,attr"`
	Covered int64  `xml:"covered,attr"`
}

type jacocoClass struct {
	Name       string          `xml:"name,attr"`
	SourceFile string          `xml:"sourcefilename,attr"`
	Counters   []jacocoCounter `xml:"counter"`
}

type jacocoPackage struct {
	Name    string        `xml:"name,attr"`
	Classes []jacocoClass `xml:"class"`
}

type jacocoGroup struct {
	Name     string          `xml:"name,attr"`
	Groups   []jacocoGroup   `xml:"group"`
	Packages []jacocoPackage `xml:"package"`
}

type jacocoReport struct {
	XMLName  xml.Name        `xml:"report"`
	Name     string          `xml:"name,attr"`
	Groups   []jacocoGroup   `xml:"group"`
	Packages []jacocoPackage `xml:"package"`
}

// parseJaCoCo reads a JaCoCo XML report into one record per class. Only the
// class-level counters are used; method counters are already rolled up.
func parseJaCoCo(r io.Reader) ([]coverage.Record, error) {
	dec := xml.NewDecoder(r)
	// Tolerate the DOCTYPE prolog and stray entities some generators emit.
	dec.Strict = false

	var rep jacocoReport
	if err := dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("parsing jacoco report: %w", err)
	}

	var out []coverage.Record
	var walk func(pkgs []jacocoPackage, groups []jacocoGroup) error
	walk = func(pkgs []jacocoPackage, groups []jacocoGroup) error {
		for _, p := range pkgs {
			for _, c := range p.Classes {
				rec, err := classRecord(c)
				if err != nil {
					return err
				}
				out = append(out, rec)
			}
		}
		for _, g := range groups {
			if err := walk(g.Packages, g.Groups); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rep.Packages, rep.Groups); err != nil {
		return nil, err
	}
	return out, nil
}

func classRecord(c jacocoClass) (coverage.Record, error) {
	if c.Name == "" {
		return coverage.Record{}, fmt.Errorf("jacoco class without name")
	}
	rec := coverage.Record{
		Path:     c.Name,
		Source:   c.SourceFile,
		Counters: make(map[coverage.Metric]coverage.Counter, len(c.Counters)),
	}
	for _, ctr := range c.Counters {
		m := coverage.Metric(ctr.Type)
		if !m.Known() {
			continue
		}
		if ctr.Missed < 0 || ctr.Covered < 0 {
			return coverage.Record{}, fmt.Errorf("class %s: negative %s counter", c.Name, m)
		}
		rec.Counters[m] = coverage.Counter{Covered: ctr.Covered, Total: ctr.Covered + ctr.Missed}
	}
	return rec, nil
}
