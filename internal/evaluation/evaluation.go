// Package evaluation scores ranked result lists against relevance judgments.
package evaluation

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
)

// Judgments maps a query id to the set of documents judged relevant.
type Judgments map[int]map[int]struct{}

// Relevant reports whether doc was judged relevant for query.
func (j Judgments) Relevant(query, doc int) bool {
	_, ok := j[query][doc]
	return ok
}

// LoadJudgments parses one judgment per line. Two columns read as
// "query doc"; four columns read as TREC qrels "query iter doc rel", where
// rel <= 0 marks a non-relevant document. Blank lines and lines starting
// with '#' are skipped.
func LoadJudgments(r io.Reader) (Judgments, error) {
	j := make(Judgments)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		var queryField, docField string
		relevant := true
		switch len(fields) {
		case 2:
			queryField, docField = fields[0], fields[1]
		case 4:
			queryField, docField = fields[0], fields[2]
			rel, err := strconv.Atoi(fields[3])
			if err != nil {
				return nil, invalidLine(line, "relevance %q is not an integer", fields[3])
			}
			relevant = rel > 0
		default:
			return nil, invalidLine(line, "want 2 or 4 columns, got %d", len(fields))
		}
		query, err := strconv.Atoi(queryField)
		if err != nil {
			return nil, invalidLine(line, "query id %q is not an integer", queryField)
		}
		doc, err := strconv.Atoi(docField)
		if err != nil {
			return nil, invalidLine(line, "document id %q is not an integer", docField)
		}
		if !relevant {
			continue
		}
		if j[query] == nil {
			j[query] = make(map[int]struct{})
		}
		j[query][doc] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading judgments: %w", err)
	}
	return j, nil
}

func invalidLine(line int, format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
		"judgments line %d: %s", line, fmt.Sprintf(format, args...))
}

type QueryScore struct {
	QueryID           int     `json:"query_id"`
	Retrieved         int     `json:"retrieved"`
	Relevant          int     `json:"relevant"`
	RelevantRetrieved int     `json:"relevant_retrieved"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F                 float64 `json:"f_measure"`
}

// Report holds per-query scores in query id order and their
// micro-averaged totals.
type Report struct {
	Queries           []QueryScore `json:"queries"`
	Retrieved         int          `json:"retrieved"`
	Relevant          int          `json:"relevant"`
	RelevantRetrieved int          `json:"relevant_retrieved"`
	Precision         float64      `json:"precision"`
	Recall            float64      `json:"recall"`
	F                 float64      `json:"f_measure"`
}

// Evaluate scores results (query id to ranked document ids) against j. Every
// query appearing in either input is reported; a judged query with no
// results counts its relevant documents as missed. Duplicate ids in a result
// list count once.
func Evaluate(results map[int][]int, j Judgments) Report {
	ids := make(map[int]struct{}, len(results)+len(j))
	for q := range results {
		ids[q] = struct{}{}
	}
	for q := range j {
		ids[q] = struct{}{}
	}
	sorted := make([]int, 0, len(ids))
	for q := range ids {
		sorted = append(sorted, q)
	}
	sort.Ints(sorted)

	var report Report
	report.Queries = make([]QueryScore, 0, len(sorted))
	for _, q := range sorted {
		seen := make(map[int]struct{}, len(results[q]))
		score := QueryScore{QueryID: q, Relevant: len(j[q])}
		for _, doc := range results[q] {
			if _, dup := seen[doc]; dup {
				continue
			}
			seen[doc] = struct{}{}
			score.Retrieved++
			if j.Relevant(q, doc) {
				score.RelevantRetrieved++
			}
		}
		score.Precision = ratio(score.RelevantRetrieved, score.Retrieved)
		score.Recall = ratio(score.RelevantRetrieved, score.Relevant)
		score.F = fMeasure(score.Precision, score.Recall)
		report.Queries = append(report.Queries, score)

		report.Retrieved += score.Retrieved
		report.Relevant += score.Relevant
		report.RelevantRetrieved += score.RelevantRetrieved
	}
	report.Precision = ratio(report.RelevantRetrieved, report.Retrieved)
	report.Recall = ratio(report.RelevantRetrieved, report.Relevant)
	report.F = fMeasure(report.Precision, report.Recall)
	return report
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func fMeasure(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
