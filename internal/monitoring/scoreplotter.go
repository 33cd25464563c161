package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ScorePlotter accumulates candidate and committed scores across passes and
// renders them as histograms. Safe for concurrent use.
type ScorePlotter struct {
	mu        sync.Mutex
	bins      int
	candidate plotter.Values
	committed plotter.Values
}

// NewScorePlotter creates a plotter with the given histogram bin count.
func NewScorePlotter(bins int) *ScorePlotter {
	if bins <= 0 {
		bins = 30
	}
	return &ScorePlotter{bins: bins}
}

// Record adds the scores of one pass.
func (sp *ScorePlotter) Record(candidateScores, committedScores []float64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.candidate = append(sp.candidate, candidateScores...)
	sp.committed = append(sp.committed, committedScores...)
}

// Counts returns the number of candidate and committed scores recorded.
func (sp *ScorePlotter) Counts() (candidates, committed int) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.candidate), len(sp.committed)
}

// GeneratePlots writes candidate_scores.png and committed_scores.png into
// outputDir. Empty series are skipped.
func (sp *ScorePlotter) GeneratePlots(outputDir string) ([]string, error) {
	sp.mu.Lock()
	candidate := append(plotter.Values(nil), sp.candidate...)
	committed := append(plotter.Values(nil), sp.committed...)
	sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string
	series := []struct {
		title  string
		file   string
		values plotter.Values
	}{
		{"Association candidate scores", "candidate_scores.png", candidate},
		{"Committed association scores", "committed_scores.png", committed},
	}
	for _, s := range series {
		if len(s.values) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = s.title
		p.X.Label.Text = "closest approach (mm)"
		p.Y.Label.Text = "pairs"

		hist, err := plotter.NewHist(s.values, sp.bins)
		if err != nil {
			return written, fmt.Errorf("build %s histogram: %w", s.file, err)
		}
		p.Add(hist)

		path := filepath.Join(outputDir, s.file)
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return written, fmt.Errorf("save %s: %w", s.file, err)
		}
		written = append(written, path)
	}
	return written, nil
}
