// ABOUTME: Revision drift between two version stamps
// ABOUTME: Detects when a system or snapshot lags behind the latest revision

package cache

import (
	"fmt"
	"strings"
)

// Drift reports that New does not carry Old's revision.
type Drift struct {
	Old string
	New string
}

func (d *Drift) String() string {
	return fmt.Sprintf("%s -> %s", d.Old, d.New)
}

// CompareVersions compares the last dot-separated segment (the revision)
// of two version strings. It returns nil when newer's revision starts with
// older's, i.e. both describe the same commit.
func CompareVersions(older, newer string) *Drift {
	older = strings.TrimSpace(older)
	newer = strings.TrimSpace(newer)

	if !strings.HasPrefix(revision(newer), revision(older)) {
		return &Drift{Old: older, New: newer}
	}
	return nil
}

// CompareStamps compares the stamps of two kinds, a being the older side.
func (s *Store) CompareStamps(a, b ArtifactKind) (*Drift, error) {
	older, err := s.ReadStamp(a)
	if err != nil {
		return nil, err
	}
	newer, err := s.ReadStamp(b)
	if err != nil {
		return nil, err
	}
	return CompareVersions(older, newer), nil
}

func revision(v string) string {
	if i := strings.LastIndexByte(v, '.'); i >= 0 {
		return v[i+1:]
	}
	return v
}
