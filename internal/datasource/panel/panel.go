// Package panel loads a user-supplied panel of known non-somatic
// indels. Panel membership deterministically overrides the model:
// matching records are reported as non-somatic regardless of their
// alignment features.
package panel

import (
	"errors"
	"fmt"

	"github.com/cormorant-bio/indelclass/internal/indel"
	"github.com/cormorant-bio/indelclass/internal/vcf"
)

// Panel is an exact-match set of canonical indel keys. Immutable after
// Load; lookups are safe from any number of goroutines. A nil *Panel
// behaves as an empty panel so callers need no configured-or-not checks.
type Panel struct {
	keys    map[string]struct{}
	skipped int
}

// Load reads a panel VCF, normalizes each entry to canonical form, and
// left-aligns it against the reference so panel entries and caller
// output meet on the same key. Non-indel entries are skipped.
func Load(path string, ref indel.SequenceSource) (*Panel, error) {
	parser, err := vcf.NewParser(path)
	if err != nil {
		return nil, fmt.Errorf("open panel: %w", err)
	}
	defer parser.Close()

	p := &Panel{keys: make(map[string]struct{})}
	for {
		v, err := parser.Next()
		if err != nil {
			var perr *vcf.ParseError
			if errors.As(err, &perr) {
				p.skipped++
				continue
			}
			return nil, fmt.Errorf("read panel: %w", err)
		}
		if v == nil {
			break
		}

		for _, split := range vcf.SplitMultiAllelic(v) {
			rec, err := indel.FromVariant(split, 0)
			if err != nil {
				p.skipped++
				continue
			}
			if ref != nil {
				if rec, err = indel.LeftAlign(rec, ref); err != nil {
					return nil, fmt.Errorf("left align panel entry %s: %w", rec, err)
				}
			}
			p.keys[rec.Key()] = struct{}{}
		}
	}

	return p, nil
}

// Contains reports whether a canonical, left-aligned record is on the
// panel.
func (p *Panel) Contains(r *indel.Record) bool {
	if p == nil {
		return false
	}
	_, ok := p.keys[r.Key()]
	return ok
}

// Count returns the number of panel entries.
func (p *Panel) Count() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Skipped returns the number of panel lines that were not usable indels.
func (p *Panel) Skipped() int {
	if p == nil {
		return 0
	}
	return p.skipped
}
