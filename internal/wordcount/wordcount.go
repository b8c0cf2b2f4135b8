// Package wordcount counts words in node text.
package wordcount

import "strings"

// Count returns the number of whitespace-separated words in text.
func Count(text string) int {
	return len(strings.Fields(text))
}

// Total sums the word counts of several texts.
func Total(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Count(t)
	}
	return total
}
