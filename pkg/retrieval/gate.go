package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/temnoon/humanizer-gm-sub013/internal/logger"
	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

// Rejection reasons recorded in GateStats.RejectionReasons.
const (
	ReasonMissingNode     = "missing-node"
	ReasonWordCountTooLow = "word-count-too-low"
	ReasonQualityTooLow   = "quality-too-low"
	ReasonExcludedStub    = "excluded-stub-type"
	ReasonTagMismatch     = "tag-mismatch"
)

// Parent length cutoffs for context synthesis, in words. At or under
// fullParentMaxWords the whole parent is prepended; up to
// previewMaxWords a truncated preview is used; beyond that only the
// parent title frames the fragment.
const (
	fullParentMaxWords = 150
	previewMaxWords    = 600
	previewWords       = 100
)

// GateConfig configures the terminal filtering stage.
type GateConfig struct {
	// TargetCount stops acceptance once reached. Default 10.
	TargetCount int

	// MinQuality rejects nodes whose overall quality score is present
	// and below this value. Nodes without a quality record pass.
	MinQuality float64

	// MinWordCount rejects nodes with fewer words.
	MinWordCount int

	// ExcludedStubTypes rejects nodes whose quality record carries one
	// of these stub classifications.
	ExcludedStubTypes []string

	// RequireTag, when set, rejects nodes not carrying the tag.
	RequireTag string

	// ExpandContext synthesizes parent context for accepted fragments
	// shorter than ExpandThreshold words.
	ExpandContext   bool
	ExpandThreshold int // default 50 when ExpandContext is set
}

func (c GateConfig) withDefaults() GateConfig {
	if c.TargetCount <= 0 {
		c.TargetCount = 10
	}
	if c.ExpandContext && c.ExpandThreshold <= 0 {
		c.ExpandThreshold = 50
	}
	return c
}

// GatedResult is one accepted candidate with everything the caller
// needs to present it.
type GatedResult struct {
	Node       *store.ContentNode
	Similarity float64
	Quality    *store.ContentQuality

	// ExpandedContext is non-empty when the fragment was short enough
	// to warrant parent context.
	ExpandedContext string
}

// GateStats describes one gate run. An all-rejected run is not an
// error; Rejected plus RejectionReasons let the caller distinguish "no
// matches" from "matches exist but were all low quality".
type GateStats struct {
	Searched         int
	Accepted         int
	Rejected         int
	RejectionReasons map[string]int
	Expanded         int
	Duration         time.Duration
}

// QualityGate is the terminal filtering and annotation stage shared by
// all retrieval paths.
type QualityGate struct {
	store store.Storer
}

// NewQualityGate wires a gate over a store.
func NewQualityGate(s store.Storer) *QualityGate {
	return &QualityGate{store: s}
}

// Apply walks candidates in ranking order, accepting until TargetCount
// is reached. Candidates referencing missing nodes are counted and
// skipped, never surfaced as errors.
func (g *QualityGate) Apply(ctx context.Context, candidates []Candidate, cfg GateConfig) ([]GatedResult, *GateStats, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	stats := &GateStats{
		Searched:         len(candidates),
		RejectionReasons: make(map[string]int),
	}
	var accepted []GatedResult

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if len(accepted) >= cfg.TargetCount {
			break
		}

		node, err := g.store.GetNode(c.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("gate: fetch node %s: %w", c.ID, err)
		}
		if node == nil {
			g.reject(stats, c.ID, ReasonMissingNode)
			continue
		}

		quality, err := g.store.GetQuality(c.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("gate: fetch quality %s: %w", c.ID, err)
		}

		if reason := g.check(node, quality, cfg); reason != "" {
			g.reject(stats, c.ID, reason)
			continue
		}

		result := GatedResult{Node: node, Similarity: c.Similarity, Quality: quality}
		if cfg.ExpandContext && node.EffectiveWordCount() < cfg.ExpandThreshold {
			expanded, err := g.expand(node)
			if err != nil {
				return nil, nil, err
			}
			if expanded != "" {
				result.ExpandedContext = expanded
				stats.Expanded++
			}
		}
		accepted = append(accepted, result)
	}

	stats.Accepted = len(accepted)
	stats.Duration = time.Since(start)
	return accepted, stats, nil
}

// check returns the first rejection reason that applies, or "".
func (g *QualityGate) check(node *store.ContentNode, quality *store.ContentQuality, cfg GateConfig) string {
	if node.EffectiveWordCount() < cfg.MinWordCount {
		return ReasonWordCountTooLow
	}
	if quality != nil && cfg.MinQuality > 0 && quality.Overall < cfg.MinQuality {
		return ReasonQualityTooLow
	}
	if quality != nil && quality.StubType != "" {
		for _, excluded := range cfg.ExcludedStubTypes {
			if quality.StubType == excluded {
				return ReasonExcludedStub
			}
		}
	}
	if cfg.RequireTag != "" && !node.HasTag(cfg.RequireTag) {
		return ReasonTagMismatch
	}
	return ""
}

func (g *QualityGate) reject(stats *GateStats, id, reason string) {
	stats.Rejected++
	stats.RejectionReasons[reason]++
	logger.Debug("gate: rejected %s: %s", id, reason)
}

// expand synthesizes combined context for a short fragment from its
// structural parent. A missing or dangling parent yields no expansion.
func (g *QualityGate) expand(node *store.ContentNode) (string, error) {
	if node.ParentID == "" {
		return "", nil
	}
	parent, err := g.store.GetNode(node.ParentID)
	if err != nil {
		return "", fmt.Errorf("gate: fetch parent %s: %w", node.ParentID, err)
	}
	if parent == nil {
		return "", nil
	}
	return synthesizeContext(node.Text, parent), nil
}

// synthesizeContext combines a fragment with parent context sized by
// the parent's length: full text for short parents, a truncated preview
// for medium ones, title only for long ones.
func synthesizeContext(fragment string, parent *store.ContentNode) string {
	switch {
	case parent.EffectiveWordCount() <= fullParentMaxWords:
		return parent.Text + "\n\n" + fragment
	case parent.EffectiveWordCount() <= previewMaxWords:
		return truncateWords(parent.Text, previewWords) + " …\n\n" + fragment
	default:
		title := parent.Title
		if title == "" {
			title = parent.URI
		}
		return title + "\n\n" + fragment
	}
}

// truncateWords returns the first n whitespace-separated words of s.
func truncateWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return s
	}
	return strings.Join(fields[:n], " ")
}
