package ir

import (
	"strings"
	"unicode"
)

// DocumentStats is a computed view over a Document. It is never part of the
// on-disk shape; callers recompute it whenever they need it.
type DocumentStats struct {
	WordCount          int
	CharacterCount     int
	SentenceCount      int
	ChapterCount       int
	ImageCount         int
	TotalResourceBytes int64

	// ReadingTimeMinutes is WordCount divided by the caller-supplied words-
	// per-minute rate (0 if wpm is 0).
	ReadingTimeMinutes float64

	// FleschKincaidGrade is the US grade-level reading score, or nil if the
	// document has no sentences to estimate against.
	FleschKincaidGrade *float64
}

// ComputeStats walks every chapter's content and returns the aggregate
// statistics for doc, estimating reading time at wpm words per minute (a
// wpm of 0 leaves ReadingTimeMinutes at 0).
func ComputeStats(doc *Document, wpm int) DocumentStats {
	stats := DocumentStats{
		ChapterCount:       len(doc.Chapters),
		TotalResourceBytes: doc.Resources.TotalBytes(),
	}

	var syllables int
	for _, ch := range doc.Chapters {
		walkContentStats(ch.Content, &stats, &syllables)
	}

	if wpm > 0 {
		stats.ReadingTimeMinutes = float64(stats.WordCount) / float64(wpm)
	}

	if stats.SentenceCount > 0 && stats.WordCount > 0 {
		grade := 0.39*(float64(stats.WordCount)/float64(stats.SentenceCount)) +
			11.8*(float64(syllables)/float64(stats.WordCount)) - 15.59
		stats.FleschKincaidGrade = &grade
	}

	return stats
}

func walkContentStats(nodes []ContentNode, stats *DocumentStats, syllables *int) {
	for _, n := range nodes {
		switch v := n.(type) {
		case Paragraph:
			accumulateInlines(v.Inlines, stats, syllables)
		case Heading:
			accumulateInlines(v.Inlines, stats, syllables)
		case List:
			for _, item := range v.Items {
				walkContentStats(item, stats, syllables)
			}
		case Table:
			for _, row := range v.Header {
				accumulateInlines(row, stats, syllables)
			}
			for _, row := range v.Rows {
				for _, cell := range row {
					accumulateInlines(cell, stats, syllables)
				}
			}
		case BlockQuote:
			walkContentStats(v.Children, stats, syllables)
		case CodeBlock:
			// Code is not prose; excluded from word/sentence/syllable counts.
		case Image:
			stats.ImageCount++
		case HorizontalRule, RawPassthrough:
			// No textual content to account for.
		}
	}
}

func accumulateInlines(inlines []InlineNode, stats *DocumentStats, syllables *int) {
	var text strings.Builder
	flattenInlineText(inlines, &text)
	s := text.String()
	if s == "" {
		return
	}

	stats.CharacterCount += len([]rune(s))

	words := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	stats.WordCount += len(words)
	for _, w := range words {
		*syllables += estimateSyllables(w)
	}

	stats.SentenceCount += countSentences(s)
}

func flattenInlineText(inlines []InlineNode, buf *strings.Builder) {
	for _, n := range inlines {
		switch v := n.(type) {
		case Text:
			buf.WriteString(v.Value)
		case Emphasis:
			flattenInlineText(v.Children, buf)
		case Strong:
			flattenInlineText(v.Children, buf)
		case Code:
			buf.WriteString(v.Value)
		case Link:
			flattenInlineText(v.Children, buf)
		case Superscript:
			flattenInlineText(v.Children, buf)
		case Subscript:
			flattenInlineText(v.Children, buf)
		case Ruby:
			buf.WriteString(v.Base)
		case LineBreak:
			buf.WriteByte(' ')
		}
	}
}

func countSentences(s string) int {
	count := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

// estimateSyllables is a crude vowel-group heuristic, adequate for a
// reading-grade estimate but not a pronunciation guide.
func estimateSyllables(word string) int {
	word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if word == "" {
		return 0
	}

	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}
