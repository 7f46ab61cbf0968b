package service

import (
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// MaxChunks caps the number of chunks retrieved for a single-document query.
const MaxChunks = 8

type queryRule struct {
	queryType domain.QueryType
	keywords  []string
}

// queryRules are checked in order; the first rule with a keyword contained
// in the lower-cased query wins.
var queryRules = []queryRule{
	{domain.QueryTypeSummary, []string{"summary", "summarize", "overview", "main points", "key points"}},
	{domain.QueryTypeExplanation, []string{"what is", "define", "explain", "describe", "tell me about"}},
	{domain.QueryTypeProcess, []string{"how", "process", "steps", "method", "procedure"}},
	{domain.QueryTypeReasoning, []string{"why", "reason", "cause", "because", "rationale"}},
	{domain.QueryTypeTemporal, []string{"when", "date", "time", "schedule", "timeline"}},
	{domain.QueryTypeEntity, []string{"who", "person", "people", "author", "name"}},
	{domain.QueryTypeComparison, []string{"compare", "difference", "versus", "vs", "contrast"}},
}

// ClassifyQuery assigns a query to an intent category by keyword substring.
// Matching is on substrings, so "show" contains "how" and counts as process.
func ClassifyQuery(query string) domain.QueryType {
	q := strings.ToLower(query)
	for _, rule := range queryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.queryType
			}
		}
	}
	return domain.QueryTypeGeneral
}

// AdjustK widens retrieval for intents that need more context, capped at
// MaxChunks.
func AdjustK(queryType domain.QueryType, defaultK int) int {
	k := defaultK
	switch queryType {
	case domain.QueryTypeSummary:
		k += 2
	case domain.QueryTypeExplanation, domain.QueryTypeProcess, domain.QueryTypeReasoning:
		k++
	}
	if k > MaxChunks {
		k = MaxChunks
	}
	return k
}

// NewQueryContext classifies query and derives its retrieval size.
func NewQueryContext(query string, defaultK int) domain.QueryContext {
	qt := ClassifyQuery(query)
	return domain.QueryContext{QueryType: qt, RequestedK: AdjustK(qt, defaultK)}
}
