/**
 * Deduplication Stages
 *
 * Three pure passes over a page's detections, in fixed order:
 * 1. Spatial dedup: collapse near-duplicate raw detections (jittered copies
 *    of the same box). Optional, off by default.
 * 2. Container filter: drop boxes that fully enclose another surviving box;
 *    tighter boxes crop sharper and downstream dedup is per-bubble.
 * 3. Text dedup: after transcription, collapse overlapping boxes whose
 *    normalized texts are equal or substring-related.
 *
 * The container filter requires spatial dedup (when enabled) to run first so
 * two bit-identical boxes never reach it with ambiguous mutual containment.
 */

package processor

import (
	"strings"
	"unicode"

	"github.com/dougiefresh49/comic-reader/internal/geometry"
)

// textDedupIoU is the minimum overlap for two regions to be considered the
// same bubble during text dedup. Overlap alone is not enough: two distinct
// bubbles sharing a short word must both survive, so the text condition is
// conjunctive.
const textDedupIoU = 0.1

// DeduplicateSpatial collapses near-duplicate detections. For each candidate
// it looks for an already-kept detection with similar geometry; if found, the
// candidate replaces it only on strictly higher confidence. Ties favor the
// earlier-kept detection, keeping the pass stable.
func DeduplicateSpatial(detections []geometry.RawDetection, tol float64, enabled bool) []geometry.RawDetection {
	if !enabled || len(detections) < 2 {
		return detections
	}

	kept := make([]geometry.RawDetection, 0, len(detections))

	for _, cand := range detections {
		matched := -1
		for i, k := range kept {
			if geometry.Similar(cand.Box, k.Box, tol) {
				matched = i
				break
			}
		}

		if matched < 0 {
			kept = append(kept, cand)
			continue
		}
		if cand.Confidence > kept[matched].Confidence {
			kept[matched] = cand
		}
	}

	return kept
}

// FilterContainers removes every detection that fully contains another
// surviving detection. A container with multiple children is discarded once.
func FilterContainers(detections []geometry.RawDetection) []geometry.RawDetection {
	if len(detections) < 2 {
		return detections
	}

	kept := make([]geometry.RawDetection, 0, len(detections))

	for i, outer := range detections {
		container := false
		for j, inner := range detections {
			if i == j {
				continue
			}
			if geometry.Contains(inner.Box, outer.Box) {
				container = true
				break
			}
		}
		if !container {
			kept = append(kept, outer)
		}
	}

	return kept
}

// DeduplicateByText collapses regions that overlap above the IoU threshold
// AND whose normalized texts are equal or substring-related. The survivor is
// the higher-confidence region; ties break toward the larger area.
func DeduplicateByText(regions []OCRRegion) []OCRRegion {
	if len(regions) < 2 {
		return regions
	}

	kept := make([]OCRRegion, 0, len(regions))

	for _, cand := range regions {
		matched := -1
		for i, k := range kept {
			if geometry.IoU(cand.Box, k.Box) <= textDedupIoU {
				continue
			}
			if textsMatch(cand.Text, k.Text) {
				matched = i
				break
			}
		}

		if matched < 0 {
			kept = append(kept, cand)
			continue
		}

		if preferRegion(cand, kept[matched]) {
			kept[matched] = cand
		}
	}

	return kept
}

// preferRegion reports whether cand should replace the kept duplicate.
func preferRegion(cand, kept OCRRegion) bool {
	if cand.Confidence != kept.Confidence {
		return cand.Confidence > kept.Confidence
	}
	return cand.Area() > kept.Area()
}

// textsMatch reports whether two transcriptions describe the same bubble:
// equal after normalization, or one a substring of the other (duplicate OCR
// passes frequently disagree only on punctuation or truncation).
func textsMatch(a, b string) bool {
	na := normalizeText(a)
	nb := normalizeText(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// normalizeText lowercases and strips punctuation, collapsing runs of
// whitespace to single spaces.
func normalizeText(s string) string {
	var b strings.Builder
	lastSpace := true

	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}
