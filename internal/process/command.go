package process

import (
	"fmt"
	"strings"
	"unicode"
)

// SplitCommand splits a line of extra arguments into words. Single or double
// quotes group a word, a backslash takes the next character literally, and
// "" produces an empty argument.
func SplitCommand(line string) ([]string, error) {
	var (
		args    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped, inWord = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inWord = r, true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unclosed %c quote in %q", quote, line)
	}
	if escaped {
		word.WriteRune('\\')
	}
	if inWord {
		args = append(args, word.String())
	}
	return args, nil
}
