package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkNetworkFormed BookmarkType = "network_formed"
	BookmarkTrailSurge    BookmarkType = "trail_surge"
	BookmarkSaturation    BookmarkType = "saturation"
	BookmarkCollapse      BookmarkType = "collapse"
	BookmarkSteadyState   BookmarkType = "steady_state"
)

// Detection thresholds.
const (
	networkCoverage    = 0.2
	saturationMean     = 0.75
	saturationReset    = 0.5
	collapseDrop       = 0.5
	collapseMinPeak    = 0.1
	surgeFactor        = 2.0
	steadyMaxCV        = 0.02
	steadyWindows      = 5
	minHistoryForTrend = 3
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Frame       uint64       `csv:"frame" json:"frame"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"frame", b.Frame,
		"description", b.Description,
	)
}

// BookmarkDetector watches successive trail map summaries for moments worth
// keeping: a network appearing, the map saturating or collapsing.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []FieldStats
	historySize int
	historyIdx  int
	historyFull bool

	networkSeen  bool
	saturated    bool
	coveragePeak float64
	steadyCount  int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < steadyWindows {
		historySize = steadyWindows
	}
	return &BookmarkDetector{
		history:     make([]FieldStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats FieldStats) []Bookmark {
	var bookmarks []Bookmark

	for _, check := range []func(FieldStats) *Bookmark{
		bd.checkNetworkFormed,
		bd.checkTrailSurge,
		bd.checkSaturation,
		bd.checkCollapse,
		bd.checkSteadyState,
	} {
		if b := check(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	if stats.Coverage > bd.coveragePeak {
		bd.coveragePeak = stats.Coverage
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats FieldStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// recent returns up to n history entries, oldest first.
func (bd *BookmarkDetector) recent(n int) []FieldStats {
	size := bd.historyIdx
	if bd.historyFull {
		size = bd.historySize
	}
	n = min(n, size)
	out := make([]FieldStats, n)
	for i := range out {
		idx := (bd.historyIdx - n + i + bd.historySize) % bd.historySize
		out[i] = bd.history[idx]
	}
	return out
}

func (bd *BookmarkDetector) checkNetworkFormed(stats FieldStats) *Bookmark {
	if bd.networkSeen || stats.Coverage < networkCoverage {
		return nil
	}
	bd.networkSeen = true
	return &Bookmark{
		Type:        BookmarkNetworkFormed,
		Frame:       stats.Frame,
		Description: fmt.Sprintf("Trail covers %.0f%% of the map", stats.Coverage*100),
	}
}

func (bd *BookmarkDetector) checkTrailSurge(stats FieldStats) *Bookmark {
	history := bd.recent(bd.historySize)
	if len(history) < minHistoryForTrend {
		return nil
	}

	totals := make([]float64, len(history))
	for i, h := range history {
		totals[i] = h.TotalTrail
	}
	avg := stat.Mean(totals, nil)
	if avg == 0 {
		return nil
	}

	if stats.TotalTrail > avg*surgeFactor {
		return &Bookmark{
			Type:        BookmarkTrailSurge,
			Frame:       stats.Frame,
			Description: fmt.Sprintf("Total trail %.1f is %.1fx average (%.1f)", stats.TotalTrail, stats.TotalTrail/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSaturation(stats FieldStats) *Bookmark {
	if bd.saturated {
		if stats.MeanIntensity < saturationReset {
			bd.saturated = false
		}
		return nil
	}
	if stats.MeanIntensity <= saturationMean {
		return nil
	}
	bd.saturated = true
	return &Bookmark{
		Type:        BookmarkSaturation,
		Frame:       stats.Frame,
		Description: fmt.Sprintf("Mean intensity %.2f", stats.MeanIntensity),
	}
}

func (bd *BookmarkDetector) checkCollapse(stats FieldStats) *Bookmark {
	if bd.coveragePeak < collapseMinPeak {
		return nil
	}

	drop := 1 - stats.Coverage/bd.coveragePeak
	if drop <= collapseDrop {
		return nil
	}
	oldPeak := bd.coveragePeak
	bd.coveragePeak = stats.Coverage
	return &Bookmark{
		Type:        BookmarkCollapse,
		Frame:       stats.Frame,
		Description: fmt.Sprintf("Coverage fell %.0f%% from peak %.2f to %.2f", drop*100, oldPeak, stats.Coverage),
	}
}

func (bd *BookmarkDetector) checkSteadyState(stats FieldStats) *Bookmark {
	if stats.Coverage == 0 {
		bd.steadyCount = 0
		return nil
	}

	history := bd.recent(steadyWindows - 1)
	if len(history) < steadyWindows-1 {
		return nil
	}

	coverage := make([]float64, 0, steadyWindows)
	for _, h := range history {
		coverage = append(coverage, h.Coverage)
	}
	coverage = append(coverage, stats.Coverage)

	mean, std := stat.PopMeanStdDev(coverage, nil)
	if mean > 0 && std/mean < steadyMaxCV {
		bd.steadyCount++
	} else {
		bd.steadyCount = 0
	}

	// trigger exactly once per steady stretch
	if bd.steadyCount == steadyWindows {
		return &Bookmark{
			Type:        BookmarkSteadyState,
			Frame:       stats.Frame,
			Description: fmt.Sprintf("Coverage steady at %.2f over %d windows", mean, steadyWindows),
		}
	}
	return nil
}
