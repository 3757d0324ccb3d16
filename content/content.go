// Package content implements the segmenter: splitting a document's content
// list into token-budgeted units for translation, summarization, and
// embedding, and reassembling translated units back into a content list.
package content

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/doujins-org/polyglotkit/tokenizer"
)

// Separator marks a hard section break in a content list: an item whose id
// equals Separator and whose Texts is empty.
const Separator = "------"

// Content is one node of a document: a stable id plus a short ordered
// sequence of text fields.
type Content struct {
	ID    string   `json:"id" cbor:"id"`
	Texts []string `json:"texts" cbor:"texts"`
}

func (c Content) isSeparator() bool { return c.ID == Separator && len(c.Texts) == 0 }
func (c Content) isEmpty() bool     { return len(c.Texts) == 0 }

// List is an ordered content list.
type List []Content

// Unit is a contiguous, token-budgeted sublist of a content list.
type Unit struct {
	Index   int
	Tokens  int
	Content List
}

// IDs returns the ids of every item in the unit, in order.
func (u Unit) IDs() []string {
	out := make([]string, len(u.Content))
	for i, c := range u.Content {
		out[i] = c.ID
	}
	return out
}

// tokensOf estimates the token cost of one content item by counting every
// text field independently and summing.
func tokensOf(c Content) int {
	n := 0
	for _, t := range c.Texts {
		n += tokenizer.Count(t)
	}
	return n
}

// Budgets bounds one segmentation pass: Section is the size at which a unit
// becomes eligible to close on a separator, High is the hard ceiling beyond
// which an oversized item forces a close.
type Budgets struct {
	Section int
	High    int
}

// SegmentForTranslation partitions list into units sized for a single
// translate call. A separator item closes the current unit only once it has
// reached the section budget; any item whose addition would push the
// current unit past the high budget closes the unit first, then seeds a new
// one with that item.
func SegmentForTranslation(list List, b Budgets) []Unit {
	var units []Unit
	cur := Unit{Index: 0}

	closeCur := func() {
		if len(cur.Content) > 0 {
			units = append(units, cur)
		}
		cur = Unit{Index: len(units)}
	}

	for _, c := range list {
		if c.isSeparator() {
			if cur.Tokens >= b.Section {
				closeCur()
			}
			continue
		}
		if c.isEmpty() {
			continue
		}
		ct := tokensOf(c)
		if cur.Tokens+ct > b.High && len(cur.Content) > 0 {
			closeCur()
		}
		cur.Content = append(cur.Content, c)
		cur.Tokens += ct
	}
	if len(cur.Content) > 0 {
		units = append(units, cur)
	}
	return units
}

// SegmentForSummarization partitions list into newline-joined text buffers
// sized for a single summarize call.
func SegmentForSummarization(list List, b Budgets) []string {
	var pieces []string
	var buf strings.Builder
	tokens := 0

	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, buf.String())
			buf.Reset()
			tokens = 0
		}
	}

	for _, c := range list {
		if c.isSeparator() {
			if tokens >= b.Section {
				flush()
			}
			continue
		}
		if c.isEmpty() {
			continue
		}
		text := strings.Join(c.Texts, "\n")
		ct := tokenizer.Count(text)
		if tokens+ct > b.High && buf.Len() > 0 {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
		tokens += ct
	}
	flush()
	return pieces
}

// GroupBudgets bounds the two-level embedding segmentation: Unit bounds a
// single embedding unit, MaxGroupTokens/MaxGroupItems bound how many units
// are batched into one embedding call.
type GroupBudgets struct {
	Unit           Budgets
	MaxGroupTokens int
	MaxGroupItems  int
}

// SegmentForEmbedding partitions list into units, then bundles units into
// groups sized for a single batched embedding call.
func SegmentForEmbedding(list List, b GroupBudgets) [][]Unit {
	units := SegmentForTranslation(list, b.Unit) // same accumulator shape as translation units
	if len(units) == 0 {
		return nil
	}
	var groups [][]Unit
	var cur []Unit
	tokens := 0
	for _, u := range units {
		if len(cur) > 0 && (tokens+u.Tokens > b.MaxGroupTokens || len(cur) >= b.MaxGroupItems) {
			groups = append(groups, cur)
			cur = nil
			tokens = 0
		}
		cur = append(cur, u)
		tokens += u.Tokens
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// colonVariants lists every Unicode colon the output-prefix parser
// tolerates, the ASCII colon included.
var colonVariants = []rune{':', '˸', '׃', '∶', '꞉', '︓', '：', '﹕'}

func isColon(r rune) bool {
	for _, c := range colonVariants {
		if r == c {
			return true
		}
	}
	return false
}

// ToTranslatingList renders the unit as the two-dimensional array shape the
// translation prompt expects: each row is ["{i}:", text...], 1-indexed.
func (u Unit) ToTranslatingList() [][]string {
	out := make([][]string, len(u.Content))
	for i, c := range u.Content {
		row := make([]string, 0, len(c.Texts)+1)
		row = append(row, strconv.Itoa(i+1)+":")
		row = append(row, c.Texts...)
		out[i] = row
	}
	return out
}

// ReplaceTexts reassembles a content list from a model's translated rows,
// matching each row to its originating position by parsing a leading
// integer prefix (tolerant of the colon variants above). Rows with no
// recognizable prefix are attached positionally, in order, to any
// originals not yet matched; rows whose prefix names no position in the
// unit, and unprefixed rows left over once every original is matched, are
// dropped.
func (u Unit) ReplaceTexts(rows [][]string) List {
	out := make(List, len(u.Content))
	copy(out, u.Content)
	matched := make([]bool, len(out))

	var unprefixed [][]string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		idx, ok := parsePrefix(row[0])
		if !ok {
			unprefixed = append(unprefixed, row)
			continue
		}
		if idx < 1 || idx > len(out) {
			continue
		}
		out[idx-1].Texts = append([]string{}, row[1:]...)
		matched[idx-1] = true
	}

	j := 0
	for i := range out {
		if matched[i] {
			continue
		}
		if j >= len(unprefixed) {
			break
		}
		out[i].Texts = append([]string{}, unprefixed[j][1:]...)
		j++
	}
	return out
}

// parsePrefix parses a "{n}:" style row-leading token, where ":" may be any
// of the tolerated colon variants.
func parsePrefix(tok string) (int, bool) {
	runes := []rune(tok)
	if len(runes) == 0 || !isColon(runes[len(runes)-1]) {
		return 0, false
	}
	numPart := string(runes[:len(runes)-1])
	n, err := strconv.Atoi(strings.TrimSpace(numPart))
	if err != nil {
		return 0, false
	}
	return n, true
}

// collapseWhitespace collapses any run of Unicode whitespace into a single
// space and trims the result.
func collapseWhitespace(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// ToEmbeddingString renders one content item as the text embedded by the
// LLM: every text field whitespace-collapsed and joined with ". ", the
// result guaranteed to end with a period.
func (c Content) ToEmbeddingString() string {
	parts := make([]string, 0, len(c.Texts))
	for _, t := range c.Texts {
		ct := collapseWhitespace(t)
		if ct != "" {
			parts = append(parts, ct)
		}
	}
	s := strings.Join(parts, ". ")
	if s == "" {
		return s
	}
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

// ToEmbeddingString renders the whole unit as one embedding input: each
// item's embedding string joined with a space.
func (u Unit) ToEmbeddingString() string {
	parts := make([]string, 0, len(u.Content))
	for _, c := range u.Content {
		if s := c.ToEmbeddingString(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
