package feed

import "strings"

// Tokenizer splits feed lines into entries.
type Tokenizer struct {
	Open  byte // Entry opening delimiter
	Close byte // Entry closing delimiter
	Sep   byte // Token separator inside an entry
}

// DefaultTokenizer matches the `{a,b,,c}` entry layout.
var DefaultTokenizer = Tokenizer{Open: '{', Close: '}', Sep: ','}

// Tokenize extracts every balanced top-level entry from line. Nested
// delimiters are kept inside the enclosing entry's text. A block still open at
// end of line is discarded and reported in malformed.
func (t Tokenizer) Tokenize(line string) (entries [][]string, malformed int) {
	sep := string(t.Sep)
	i := 0
	for i < len(line) {
		if line[i] != t.Open {
			i++
			continue
		}

		start := i + 1
		depth := 1
		i++
		for i < len(line) && depth > 0 {
			switch line[i] {
			case t.Open:
				depth++
			case t.Close:
				depth--
			}
			i++
		}

		if depth != 0 {
			malformed++
			break
		}

		raw := strings.Split(line[start:i-1], sep)
		tokens := make([]string, len(raw))
		for j, tok := range raw {
			tokens[j] = strings.TrimSpace(tok)
		}
		entries = append(entries, tokens)
	}
	return entries, malformed
}
