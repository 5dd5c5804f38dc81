package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/arwrap/internal/inference"
	"github.com/samcharles93/arwrap/internal/tokenizer"
)

// parseTokenBatch parses rows separated by ';' of ids separated by ',', for
// example "1,2,3;4,5,6".
func parseTokenBatch(s string) (inference.Batch, error) {
	var batch inference.Batch
	for i, rowText := range strings.Split(s, ";") {
		rowText = strings.TrimSpace(rowText)
		if rowText == "" {
			return nil, fmt.Errorf("row %d is empty", i)
		}
		var row []int
		for _, field := range strings.Split(rowText, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			row = append(row, id)
		}
		batch = append(batch, row)
	}
	return batch, nil
}

// inputBatch builds a batch from either --tokens or the positional text
// arguments.
func inputBatch(tok tokenizer.Tokenizer, tokens string, texts []string) (inference.Batch, error) {
	switch {
	case tokens != "" && len(texts) > 0:
		return nil, fmt.Errorf("pass either --tokens or text arguments, not both")
	case tokens != "":
		return parseTokenBatch(tokens)
	case len(texts) == 0:
		return nil, fmt.Errorf("no input: pass text arguments or --tokens")
	}
	batch := make(inference.Batch, len(texts))
	for i, text := range texts {
		ids, err := tok.Encode(text)
		if err != nil {
			return nil, err
		}
		batch[i] = ids
	}
	return batch, nil
}

// formatRow renders a generated row as text, dropping pad tokens. Rows the
// tokenizer cannot decode are printed as ids.
func formatRow(tok tokenizer.Tokenizer, row []int, pad int) string {
	ids := make([]int, 0, len(row))
	for _, id := range row {
		if id != pad {
			ids = append(ids, id)
		}
	}
	if text, err := tok.Decode(ids); err == nil {
		return strconv.Quote(text)
	}
	parts := make([]string, len(row))
	for i, id := range row {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
