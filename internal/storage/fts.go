package storage

import (
	"regexp"
	"sort"
	"strings"
)

var (
	separatorPattern = regexp.MustCompile(`[_\.\-\s/:;,()]+`)
	camelPattern     = regexp.MustCompile(`([a-z])([A-Z])`)
	acronymPattern   = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	letterDigit      = regexp.MustCompile(`([a-zA-Z])(\d)`)
	digitLetter      = regexp.MustCompile(`(\d)([a-zA-Z])`)
)

// tokenize splits text into searchable tokens.
// Handles camelCase, snake_case, dot notation and acronyms: "HTTPServerType"
// yields "httpservertype", "http", "server" and "type".
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	tokens := make(map[string]bool)

	for _, word := range separatorPattern.Split(text, -1) {
		if word == "" {
			continue
		}
		tokens[strings.ToLower(word)] = true

		// Split camelCase: "PumpType" -> "Pump", "Type"
		split := acronymPattern.ReplaceAllString(word, "$1 $2")
		split = camelPattern.ReplaceAllString(split, "$1 $2")

		// Split on number boundaries: "Matrix2x2" -> "Matrix", "2", "x", "2"
		split = letterDigit.ReplaceAllString(split, "$1 $2")
		split = digitLetter.ReplaceAllString(split, "$1 $2")

		for _, part := range strings.Fields(split) {
			tokens[strings.ToLower(part)] = true
		}
	}

	result := make([]string, 0, len(tokens))
	for token := range tokens {
		result = append(result, token)
	}
	sort.Strings(result)
	return result
}

// exactMatchBonus is added to documents whose browse name equals the query.
const exactMatchBonus = 10.0

// invertedIndex maps tokens to the documents containing them. It is not
// safe for concurrent use; backends guard it with their own lock.
type invertedIndex struct {
	tokens map[string]map[string]int // token -> nodeID -> frequency
	docs   map[string]indexedNode
	terms  map[string][]string // nodeID -> tokens, for replacement
}

func newInvertedIndex() *invertedIndex {
	return &invertedIndex{
		tokens: make(map[string]map[string]int),
		docs:   make(map[string]indexedNode),
		terms:  make(map[string][]string),
	}
}

func (x *invertedIndex) add(doc indexedNode) {
	x.remove(doc.NodeID)

	freq := make(map[string]int)
	for _, field := range strings.Fields(doc.text()) {
		for _, token := range tokenize(field) {
			freq[token]++
		}
	}

	terms := make([]string, 0, len(freq))
	for token, n := range freq {
		postings, ok := x.tokens[token]
		if !ok {
			postings = make(map[string]int)
			x.tokens[token] = postings
		}
		postings[doc.NodeID] = n
		terms = append(terms, token)
	}
	x.docs[doc.NodeID] = doc
	x.terms[doc.NodeID] = terms
}

func (x *invertedIndex) remove(nodeID string) {
	for _, token := range x.terms[nodeID] {
		postings := x.tokens[token]
		delete(postings, nodeID)
		if len(postings) == 0 {
			delete(x.tokens, token)
		}
	}
	delete(x.terms, nodeID)
	delete(x.docs, nodeID)
}

func (x *invertedIndex) len() int {
	return len(x.docs)
}

// search scores each document by summing the frequencies of the query
// tokens it contains. Ties are ordered by NodeId.
func (x *invertedIndex) search(query string, limit int) []SearchResult {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []SearchResult{}
	}

	scores := make(map[string]float64)
	for _, token := range queryTokens {
		for nodeID, freq := range x.tokens[token] {
			scores[nodeID] += float64(freq)
		}
	}

	exact := strings.ToLower(strings.TrimSpace(query))
	results := make([]SearchResult, 0, len(scores))
	for nodeID, score := range scores {
		doc := x.docs[nodeID]
		name := doc.BrowseName
		if _, after, ok := strings.Cut(name, ":"); ok {
			name = after
		}
		if strings.ToLower(name) == exact {
			score += exactMatchBonus
		}
		results = append(results, doc.result(score))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].NodeID < results[j].NodeID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
