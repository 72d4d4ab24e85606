package query

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// bigramVec is a character-bigram frequency vector with its Euclidean norm
// precomputed, so pairwise cosine comparisons inside clustering loops stay
// cheap.
type bigramVec struct {
	counts map[string]int
	norm   float64
}

// newBigramVec folds the string to lower case, drops spaces and punctuation
// and counts consecutive rune pairs. A single surviving rune counts as its
// own bigram so one-character titles still compare non-trivially.
func newBigramVec(s string) bigramVec {
	runes := significantRunes(s)
	counts := make(map[string]int, len(runes))
	switch {
	case len(runes) == 0:
	case len(runes) == 1:
		counts[string(runes)] = 1
	default:
		for i := 0; i < len(runes)-1; i++ {
			counts[string(runes[i:i+2])]++
		}
	}

	var sum float64
	for _, c := range counts {
		sum += float64(c) * float64(c)
	}
	return bigramVec{counts: counts, norm: math.Sqrt(sum)}
}

// cosine returns the cosine similarity in [0,1]. Empty vectors score zero
// against everything.
func (v bigramVec) cosine(o bigramVec) float64 {
	if v.norm == 0 || o.norm == 0 {
		return 0
	}
	// Iterate the smaller map.
	a, b := v, o
	if len(b.counts) < len(a.counts) {
		a, b = b, a
	}
	dot := 0
	for gram, ca := range a.counts {
		if cb, ok := b.counts[gram]; ok {
			dot += ca * cb
		}
	}
	return float64(dot) / (v.norm * o.norm)
}

// titleSimilarity is the one-shot form used when only a single comparison is
// needed.
func titleSimilarity(a, b string) float64 {
	return newBigramVec(a).cosine(newBigramVec(b))
}

func significantRunes(s string) []rune {
	out := make([]rune, 0, len(s)/2)
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			out = append(out, r)
		}
	}
	return out
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// Tokenize splits a title into keyword candidates: latin/digit words of at
// least two characters plus overlapping two-character segments of every CJK
// run. Stop words and bare numbers are dropped. This is the unit the
// co-occurrence and auto-extract paths count over.
func (l Lexicon) Tokenize(title string) []string {
	var tokens []string
	emit := func(tok string) {
		if tok == "" || l.IsStop(tok) || allDigits(tok) {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, field := range splitFields(title) {
		runs := splitScriptRuns(field)
		for _, run := range runs {
			if run.cjk {
				for _, gram := range cjkGrams(run.runes, 2, 2) {
					emit(gram)
				}
				continue
			}
			if len(run.runes) >= 2 {
				emit(strings.ToLower(string(run.runes)))
			}
		}
	}
	return tokens
}

// ExtractKeywords counts candidate phrases over a set of titles and returns
// the most frequent ones. Latin text contributes word n-grams up to three
// words, CJK runs contribute two- and three-character grams. Each phrase is
// counted at most once per title, and phrases seen fewer than minCount times
// are dropped.
func (l Lexicon) ExtractKeywords(titles []string, topN, minCount int) []KeywordCount {
	if minCount <= 0 {
		minCount = 2
	}
	counts := make(map[string]int)
	for _, title := range titles {
		for gram := range l.extractGrams(title) {
			counts[gram]++
		}
	}

	out := make([]KeywordCount, 0, len(counts))
	for gram, c := range counts {
		if c >= minCount {
			out = append(out, KeywordCount{Keyword: gram, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// KeywordCount is one extracted phrase with its title frequency.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// extractGrams emits the deduplicated phrase set of one title.
func (l Lexicon) extractGrams(title string) map[string]struct{} {
	grams := make(map[string]struct{})
	add := func(g string) {
		if g == "" || l.IsStop(g) || allDigits(g) {
			return
		}
		grams[g] = struct{}{}
	}

	var words []string // latin words in order, for word n-grams
	for _, field := range splitFields(title) {
		for _, run := range splitScriptRuns(field) {
			if run.cjk {
				for _, g := range cjkGrams(run.runes, 2, 3) {
					add(g)
				}
				continue
			}
			if len(run.runes) < 2 {
				continue
			}
			w := strings.ToLower(string(run.runes))
			if !l.IsStop(w) && !allDigits(w) {
				words = append(words, w)
			}
		}
	}
	for i := range words {
		add(words[i])
		if i+1 < len(words) {
			add(words[i] + " " + words[i+1])
		}
		if i+2 < len(words) {
			add(words[i] + " " + words[i+1] + " " + words[i+2])
		}
	}
	return grams
}

func splitFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

type scriptRun struct {
	runes []rune
	cjk   bool
}

// splitScriptRuns cuts a field at CJK/non-CJK boundaries, so mixed tokens
// like "iPhone手机" produce one latin run and one CJK run.
func splitScriptRuns(field string) []scriptRun {
	var runs []scriptRun
	for _, r := range field {
		c := isCJK(r)
		if n := len(runs); n > 0 && runs[n-1].cjk == c {
			runs[n-1].runes = append(runs[n-1].runes, r)
			continue
		}
		runs = append(runs, scriptRun{runes: []rune{r}, cjk: c})
	}
	return runs
}

// cjkGrams returns every substring of rune length minN..maxN of the run.
func cjkGrams(runes []rune, minN, maxN int) []string {
	var grams []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams = append(grams, string(runes[i:i+n]))
		}
	}
	return grams
}

func allDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
