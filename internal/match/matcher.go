// Package match implements the passphrase matching engine. It decides whether
// a noisy speech-to-text transcription denotes one of the configured secrets.
//
// Matching proceeds in three layered strategies:
//
//  1. Exact: both sides are trimmed and case-folded and compared for equality
//     in configuration order. The first hit short-circuits with a score of 100.
//
//  2. Fuzzy: the better of a normalized Levenshtein similarity and a
//     Jaro-Winkler similarity (both on a 0–100 scale, 100 = identical) is
//     computed between the folded input and every folded secret, both as full
//     strings and with spaces stripped. Jaro-Winkler rewards the shared
//     prefix, which is what survives when a transcription drops syllables
//     from the middle of a passphrase ("alo mora" for "alohomora").
//
//  3. Phonetic: Double Metaphone codes are computed for input and secrets.
//     Identical codes score 100; otherwise the code strings are compared with
//     the same combined similarity. This tolerates transcription errors that
//     preserve pronunciation but not spelling ("melon" for "mellon").
//
// The first strategy to reach the threshold wins. When nothing reaches the
// threshold the result carries the best score observed across all strategies
// so that callers can log near-misses. Ties between secrets are broken by
// configuration order, making results deterministic.
//
// Check is a pure function with no I/O; a Matcher merely binds a secret list
// and threshold to it. All of the package is safe for concurrent use.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Result is the outcome of a single passphrase check.
//
// Invariant: Matched implies Score >= the threshold used for the check and
// Secret is non-empty. Score is always in [0, 100] and reflects the best
// comparison found across all strategies, even when Matched is false.
type Result struct {
	// Matched reports whether the input was accepted as one of the secrets.
	Matched bool

	// Score is the similarity score (0–100) of the best comparison.
	Score float64

	// Secret is the configured secret that matched, in its original spelling.
	// Empty when Matched is false.
	Secret string

	// Strategy names the strategy that produced the match: "exact", "fuzzy",
	// or "phonetic". Empty when Matched is false.
	Strategy string
}

// Check tests whether text denotes one of secrets, accepting any comparison
// whose similarity reaches threshold (0–100).
//
// Empty or whitespace-only text short-circuits to a zero Result without
// invoking any strategy. An empty secret list never matches. "No match" is a
// normal result, not an error.
func Check(text string, secrets []string, threshold float64) Result {
	folded := fold(text)
	if folded == "" || len(secrets) == 0 {
		return Result{}
	}

	// Strategy 1: exact equality after folding. First hit in configuration
	// order wins, so a literally repeated secret behaves deterministically.
	for _, secret := range secrets {
		if fold(secret) == folded {
			return Result{Matched: true, Score: 100, Secret: secret, Strategy: "exact"}
		}
	}

	best := Result{}

	// Strategy 2: normalized edit-distance similarity.
	fuzzyScore, fuzzySecret := bestBy(folded, secrets, fuzzySimilarity)
	if fuzzyScore > best.Score {
		best = Result{Score: fuzzyScore, Secret: fuzzySecret}
	}
	if fuzzyScore >= threshold {
		return Result{Matched: true, Score: fuzzyScore, Secret: fuzzySecret, Strategy: "fuzzy"}
	}

	// Strategy 3: phonetic fallback on Double Metaphone codes.
	phoneticScore, phoneticSecret := bestBy(folded, secrets, phoneticSimilarity)
	if phoneticScore > best.Score {
		best = Result{Score: phoneticScore, Secret: phoneticSecret}
	}
	if phoneticScore >= threshold {
		return Result{Matched: true, Score: phoneticScore, Secret: phoneticSecret, Strategy: "phonetic"}
	}

	// Report the best score seen for diagnostics, but no secret: nothing
	// was accepted.
	return Result{Score: best.Score}
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum similarity score (0–100) required to accept
// a fuzzy or phonetic match. Default: 80.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// defaultThreshold is the accept threshold used when none is configured.
const defaultThreshold = 80

// Matcher binds an immutable secret list and threshold to [Check]. It holds
// no other state and is safe for concurrent use.
type Matcher struct {
	secrets   []string
	threshold float64
}

// New returns a Matcher over the given secrets. The slice is copied; later
// mutation of the caller's slice does not affect the Matcher.
func New(secrets []string, opts ...Option) *Matcher {
	m := &Matcher{
		secrets:   append([]string(nil), secrets...),
		threshold: defaultThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Check runs [Check] against the configured secrets and threshold.
func (m *Matcher) Check(text string) Result {
	return Check(text, m.secrets, m.threshold)
}

// Threshold returns the configured accept threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Secrets returns a copy of the configured secret list.
func (m *Matcher) Secrets() []string {
	return append([]string(nil), m.secrets...)
}

// fold normalizes a string for comparison: trimmed and case-folded. Secrets
// keep their original spelling in results; folding happens per comparison.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bestBy evaluates sim between folded input and every folded secret, returning
// the highest score and the corresponding secret in its original spelling.
// A strictly-greater comparison keeps the earliest secret on ties.
func bestBy(folded string, secrets []string, sim func(a, b string) float64) (float64, string) {
	var (
		bestScore  float64
		bestSecret string
	)
	for _, secret := range secrets {
		fs := fold(secret)
		if fs == "" {
			continue
		}
		if s := sim(folded, fs); s > bestScore {
			bestScore = s
			bestSecret = secret
		}
	}
	return bestScore, bestSecret
}

// fuzzySimilarity computes a combined string similarity on a 0–100 scale.
// Spoken phrases often gain or lose spaces in transcription, so the
// space-stripped variant is also tried and the better score kept.
func fuzzySimilarity(a, b string) float64 {
	score := stringSimilarity(a, b)
	if strings.ContainsRune(a, ' ') || strings.ContainsRune(b, ' ') {
		if s := stringSimilarity(stripSpaces(a), stripSpaces(b)); s > score {
			score = s
		}
	}
	return score
}

// stringSimilarity returns the better of the normalized Levenshtein and the
// Jaro-Winkler similarity. Levenshtein punishes every dropped syllable;
// Jaro-Winkler credits the shared prefix and transposed fragments, so taking
// the maximum keeps prefix-preserving mishearings above the threshold.
func stringSimilarity(a, b string) float64 {
	score := levenshteinSimilarity(a, b)
	if s := jaroWinklerSimilarity(a, b); s > score {
		score = s
	}
	return score
}

// phoneticSimilarity compares Double Metaphone encodings of the two strings.
// Equal codes score 100; otherwise the codes themselves are compared with the
// combined string similarity, since the codes are truncated to four characters
// and near-equal codes deserve partial credit. Both a per-token code sequence
// and a space-stripped whole-string code are tried.
func phoneticSimilarity(a, b string) float64 {
	var score float64

	ca, cb := phoneticCode(a), phoneticCode(b)
	if ca != "" && ca == cb {
		return 100
	}
	if ca != "" && cb != "" {
		score = stringSimilarity(ca, cb)
	}

	// Joined-word variant: "alo mora" encoded as one word against "alohomora".
	ja, jb := phoneticWord(stripSpaces(a)), phoneticWord(stripSpaces(b))
	if ja != "" && ja == jb {
		return 100
	}
	if ja != "" && jb != "" {
		if s := stringSimilarity(ja, jb); s > score {
			score = s
		}
	}

	return score
}

// phoneticCode encodes each whitespace-separated token with Double Metaphone
// and joins the primary codes with single spaces. Tokens that produce no code
// (too short, no consonants) are skipped.
func phoneticCode(s string) string {
	var codes []string
	for _, tok := range strings.Fields(s) {
		if c := phoneticWord(tok); c != "" {
			codes = append(codes, c)
		}
	}
	return strings.Join(codes, " ")
}

// phoneticWord returns the primary Double Metaphone code for a single word.
func phoneticWord(w string) string {
	if w == "" {
		return ""
	}
	primary, _ := matchr.DoubleMetaphone(w)
	return primary
}

// levenshteinSimilarity maps Levenshtein distance onto a 0–100 similarity:
// 100 * (1 - distance/maxLen). Identical strings score 100, fully dissimilar
// strings approach 0. Symmetric in its arguments.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 100
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 100
	}
	dist := matchr.Levenshtein(a, b)
	if dist > maxLen {
		dist = maxLen
	}
	return 100 * (1 - float64(dist)/float64(maxLen))
}

// jaroWinklerSimilarity maps the Jaro-Winkler metric onto a 0–100 scale.
func jaroWinklerSimilarity(a, b string) float64 {
	return 100 * matchr.JaroWinkler(a, b, false)
}

// stripSpaces removes all whitespace from s.
func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
