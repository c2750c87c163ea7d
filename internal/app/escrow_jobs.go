package app

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

// Sort columns of the jobs table.
const (
	SortID        = "id"
	SortCreated   = "created"
	SortAlgorithm = "algorithm"
	SortTotal     = "total"
	SortFound     = "found"
	SortLeft      = "left"
	SortCurrency  = "currency"
	SortPrice     = "price"
	SortHints     = "hints"
)

const jobTimeLayout = "2006-01-02 15:04:05"

// JobFilter mirrors the filter bar above the jobs table.
type JobFilter struct {
	// Currency is matched case-insensitively; "" or "All" disables it.
	Currency string
	// Algorithm is either a "<id> - <name>" option (exact id), an id prefix
	// when it starts with a digit, or a name substring.
	Algorithm string
	MinLeft   int
}

// JobFilterFromPreferences restores the filter saved by the shell.
func JobFilterFromPreferences(p domain.Preferences) JobFilter {
	return JobFilter{
		Currency:  p.String(domain.KeyJobsCurrency, ""),
		Algorithm: p.String(domain.KeyJobsAlgorithm, ""),
		MinLeft:   p.Int(domain.KeyJobsMinLeft, 0),
	}
}

type algorithmMatch int

const (
	matchNone algorithmMatch = iota
	matchExact
	matchIDPrefix
	matchName
)

func parseAlgorithmFilter(selected string) (algorithmMatch, string) {
	selected = strings.TrimSpace(selected)
	if selected == "" || strings.EqualFold(selected, "all") {
		return matchNone, ""
	}
	if id, _, ok := strings.Cut(selected, " - "); ok {
		return matchExact, strings.TrimSpace(id)
	}
	if unicode.IsDigit(rune(selected[0])) {
		return matchIDPrefix, selected
	}
	return matchName, strings.ToLower(selected)
}

func FilterJobs(jobs []domain.EscrowJob, f JobFilter) []domain.EscrowJob {
	currency := strings.ToUpper(strings.TrimSpace(f.Currency))
	mode, value := parseAlgorithmFilter(f.Algorithm)

	out := make([]domain.EscrowJob, 0, len(jobs))
	for _, job := range jobs {
		if currency != "" && currency != "ALL" && strings.ToUpper(job.Currency.String()) != currency {
			continue
		}
		id := job.AlgorithmID.String()
		switch mode {
		case matchExact:
			if id != value {
				continue
			}
		case matchIDPrefix:
			if !strings.HasPrefix(id, value) {
				continue
			}
		case matchName:
			if !strings.Contains(strings.ToLower(job.AlgorithmName.String()), value) {
				continue
			}
		}
		if job.LeftHashes.Int() < f.MinLeft {
			continue
		}
		out = append(out, job)
	}
	return out
}

// DefaultSortDesc reports whether a freshly selected column sorts descending.
func DefaultSortDesc(column string) bool {
	switch column {
	case SortID, SortCreated, SortTotal, SortFound, SortLeft, SortPrice:
		return true
	default:
		return false
	}
}

// SortJobs sorts in place by a jobs table column. Unknown columns sort by
// creation date. Equal rows keep their relative order in both directions.
func SortJobs(jobs []domain.EscrowJob, column string, desc bool) {
	cmp := jobComparator(column)
	sort.SliceStable(jobs, func(i, j int) bool {
		if desc {
			return cmp(jobs[j], jobs[i]) < 0
		}
		return cmp(jobs[i], jobs[j]) < 0
	})
}

func jobComparator(column string) func(a, b domain.EscrowJob) int {
	switch column {
	case SortID:
		return func(a, b domain.EscrowJob) int { return compareInts(a.ID.Int(), b.ID.Int()) }
	case SortAlgorithm:
		return func(a, b domain.EscrowJob) int {
			return strings.Compare(strings.ToLower(a.AlgorithmName.String()), strings.ToLower(b.AlgorithmName.String()))
		}
	case SortTotal:
		return func(a, b domain.EscrowJob) int { return compareInts(a.TotalHashes.Int(), b.TotalHashes.Int()) }
	case SortFound:
		return func(a, b domain.EscrowJob) int { return compareInts(a.FoundHashes.Int(), b.FoundHashes.Int()) }
	case SortLeft:
		return func(a, b domain.EscrowJob) int { return compareInts(a.LeftHashes.Int(), b.LeftHashes.Int()) }
	case SortCurrency:
		return func(a, b domain.EscrowJob) int {
			return strings.Compare(strings.ToLower(a.Currency.String()), strings.ToLower(b.Currency.String()))
		}
	case SortPrice:
		return func(a, b domain.EscrowJob) int {
			return compareFloats(a.PricePerHashUSD.Float(), b.PricePerHashUSD.Float())
		}
	case SortHints:
		return func(a, b domain.EscrowJob) int { return compareInts(hasHints(a), hasHints(b)) }
	default:
		return func(a, b domain.EscrowJob) int { return compareCreated(a.CreatedAt.String(), b.CreatedAt.String()) }
	}
}

// compareCreated orders parseable timestamps before anything else.
func compareCreated(a, b string) int {
	ta, errA := time.Parse(jobTimeLayout, a)
	tb, errB := time.Parse(jobTimeLayout, b)
	switch {
	case errA == nil && errB == nil:
		return ta.Compare(tb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func hasHints(j domain.EscrowJob) int {
	if strings.TrimSpace(j.Hints.String()) != "" {
		return 1
	}
	return 0
}

// SummarizeJobs computes what is left to earn on jobs: for each job the
// hashes still needed times its price, in USD and in the job currency.
func SummarizeJobs(jobs []domain.EscrowJob) domain.JobStats {
	stats := domain.JobStats{Count: len(jobs), CryptoTotals: map[string]float64{}}
	for _, job := range jobs {
		found := job.FoundHashes.Int()
		maxNeeded := job.MaxCracksNeeded.Int()
		stats.Left += job.LeftHashes.Int()
		stats.Found += found

		neededLeft := maxNeeded
		if found > 0 {
			neededLeft = max(maxNeeded-found, 0)
		}
		stats.EstimatedUSD += job.PricePerHashUSD.Float() * float64(neededLeft)

		currency := strings.ToUpper(job.Currency.String())
		if currency == "" {
			currency = "UNKNOWN"
		}
		stats.CryptoTotals[currency] += job.PricePerHash.Float() * float64(neededLeft)
	}
	return stats
}

// CurrencyOptions lists the distinct currencies of jobs, sorted, for the
// currency filter.
func CurrencyOptions(jobs []domain.EscrowJob) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, job := range jobs {
		c := strings.ToUpper(job.Currency.String())
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

var jobCSVHeader = []string{
	"id", "createdAt", "lastUpdate", "algorithmName", "algorithmId",
	"totalHashes", "foundHashes", "leftHashes", "maxCracksNeeded",
	"currency", "pricePerHash", "pricePerHashUsd", "leftList", "hints",
}

func WriteJobsCSV(w io.Writer, jobs []domain.EscrowJob) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(jobCSVHeader); err != nil {
		return err
	}
	for _, j := range jobs {
		row := []string{
			j.ID.String(), j.CreatedAt.String(), j.LastUpdate.String(), j.AlgorithmName.String(), j.AlgorithmID.String(),
			j.TotalHashes.String(), j.FoundHashes.String(), j.LeftHashes.String(), j.MaxCracksNeeded.String(),
			j.Currency.String(), j.PricePerHash.String(), j.PricePerHashUSD.String(), j.LeftList.String(), j.Hints.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SelectJobs returns the jobs whose id is in ids, in the order of ids.
// Unknown ids are skipped.
func SelectJobs(jobs []domain.EscrowJob, ids []string) []domain.EscrowJob {
	byID := make(map[string]domain.EscrowJob, len(jobs))
	for _, j := range jobs {
		byID[j.ID.String()] = j
	}
	out := make([]domain.EscrowJob, 0, len(ids))
	for _, id := range ids {
		if j, ok := byID[strings.TrimSpace(id)]; ok {
			out = append(out, j)
		}
	}
	return out
}
