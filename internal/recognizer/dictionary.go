package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Charset is the recognition character set loaded from a dictionary
// file. Token index i corresponds to model output index i+1; output
// index 0 is the CTC blank. Immutable after load.
type Charset struct {
	Tokens       []string
	TokenToIndex map[string]int
}

// LoadCharset loads a dictionary file where each non-empty line is one
// token. A UTF-8 BOM on the first line is stripped.
func LoadCharset(path string) (*Charset, error) {
	if path == "" {
		return nil, errors.New("dictionary path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: user-provided dictionary path is expected
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	tokens := make([]string, 0, 512)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "﻿")
		}
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading dictionary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("dictionary is empty: %s", path)
	}
	return NewCharset(tokens), nil
}

// LoadCharsets loads and merges several dictionary files in order,
// keeping the first occurrence of duplicate tokens.
func LoadCharsets(paths []string) (*Charset, error) {
	if len(paths) == 0 {
		return nil, errors.New("no dictionary paths")
	}
	merged := make([]string, 0, 1024)
	seen := make(map[string]struct{}, 1024)
	for _, p := range paths {
		cs, err := LoadCharset(p)
		if err != nil {
			return nil, err
		}
		for _, t := range cs.Tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			merged = append(merged, t)
		}
	}
	return NewCharset(merged), nil
}

// NewCharset builds a charset from an ordered token list.
func NewCharset(tokens []string) *Charset {
	toIdx := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, ok := toIdx[t]; !ok {
			toIdx[t] = i
		}
	}
	return &Charset{Tokens: tokens, TokenToIndex: toIdx}
}

// Size returns the number of tokens, excluding blank.
func (c *Charset) Size() int { return len(c.Tokens) }

// Decode maps a model output index to its token. Index 0 is blank and
// out-of-range indices decode to the empty string.
func (c *Charset) Decode(index int) string {
	if index <= 0 || index > len(c.Tokens) {
		return ""
	}
	return c.Tokens[index-1]
}
