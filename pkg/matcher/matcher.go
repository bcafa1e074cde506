// Package matcher finds the gallery identities closest to a captured frame.
package matcher

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/teslashibe/go-elevatr/pkg/frames"
)

// Candidate is one gallery entry compared against a frame.
// Identity is the gallery path of the matched reference image.
type Candidate struct {
	Identity string  `json:"identity"`
	Distance float64 `json:"distance"`
}

// Matcher compares a frame against the gallery stored in galleryDir.
// Candidates are returned in ascending distance order and may be empty.
type Matcher interface {
	Find(ctx context.Context, frame frames.Frame, galleryDir string) ([]Candidate, error)
}

// Best returns the candidate with the lowest distance, or false when
// there are none. It does not rely on the slice being sorted.
func Best(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Distance < best.Distance {
			best = c
		}
	}
	return best, true
}

// IdentityKey derives the user ID from a gallery path:
// "gallery/U7.jpg" becomes "U7".
func IdentityKey(identity string) string {
	base := path.Base(filepath.ToSlash(identity))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Func adapts a function to the Matcher interface.
type Func func(ctx context.Context, frame frames.Frame, galleryDir string) ([]Candidate, error)

// Find calls f.
func (f Func) Find(ctx context.Context, frame frames.Frame, galleryDir string) ([]Candidate, error) {
	return f(ctx, frame, galleryDir)
}
