/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dictionary.go
Description: Dictionary support for crashprobe. Loads AFL-format token files and provides
a mutator that inserts or overwrites tokens in the test case.
*/

package strategies

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// Dictionary is a list of tokens used by dictionary mutations
type Dictionary [][]byte

// LoadDictionary reads a dictionary file
func LoadDictionary(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer f.Close()
	return ParseDictionary(f)
}

// ParseDictionary parses AFL dictionary syntax. Blank lines and lines starting
// with '#' are skipped. Quoted tokens, optionally prefixed with name=, have
// their escapes decoded; anything else is taken verbatim.
func ParseDictionary(r io.Reader) (Dictionary, error) {
	var dict Dictionary
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// name="value"
		if eq := strings.Index(line, "="); eq > 0 && strings.HasSuffix(line, `"`) && line[eq+1] == '"' {
			line = line[eq+1:]
		}

		if len(line) >= 2 && line[0] == '"' && line[len(line)-1] == '"' {
			dict = append(dict, unescapeToken(line[1:len(line)-1]))
			continue
		}
		dict = append(dict, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	return dict, nil
}

// unescapeToken decodes \xNN, \n, \r, \t, \\ and \" escapes. Malformed
// escapes are kept literally.
func unescapeToken(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			out = append(out, s[i])
			continue
		}
		switch s[i+1] {
		case 'x':
			if i+3 < len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					out = append(out, byte(v))
					i += 3
					continue
				}
			}
			out = append(out, s[i])
		case 'n':
			out = append(out, '\n')
			i++
		case 'r':
			out = append(out, '\r')
			i++
		case 't':
			out = append(out, '\t')
			i++
		case '\\', '"':
			out = append(out, s[i+1])
			i++
		default:
			out = append(out, s[i])
		}
	}
	return out
}

// Apply inserts a random token at a random position, or overwrites bytes
// with it. Overwrites of inputs shorter than the token are skipped.
func (d Dictionary) Apply(data []byte) []byte {
	if len(d) == 0 || len(data) == 0 {
		return data
	}
	token := d[rand.Intn(len(d))]

	if rand.Intn(2) == 0 {
		pos := rand.Intn(len(data) + 1)
		res := make([]byte, 0, len(data)+len(token))
		res = append(res, data[:pos]...)
		res = append(res, token...)
		return append(res, data[pos:]...)
	}

	if len(data) < len(token) {
		return data
	}
	res := clone(data)
	pos := rand.Intn(len(data) - len(token) + 1)
	copy(res[pos:], token)
	return res
}

// DictionaryMutator applies dictionary tokens to test cases
type DictionaryMutator struct {
	dict Dictionary
}

// NewDictionaryMutator creates a dictionary mutator
func NewDictionaryMutator(dict Dictionary) *DictionaryMutator {
	return &DictionaryMutator{dict: dict}
}

// Mutate inserts or overwrites a dictionary token
func (m *DictionaryMutator) Mutate(testCase *interfaces.TestCase) (*interfaces.TestCase, error) {
	return derive(testCase, m.dict.Apply(testCase.Data), m.Name()), nil
}

// Name returns the name of this mutator
func (m *DictionaryMutator) Name() string { return "DictionaryMutator" }

// Description returns a description of this mutator
func (m *DictionaryMutator) Description() string {
	return "Inserts or overwrites user-supplied dictionary tokens"
}
