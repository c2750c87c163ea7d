package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Text holds a hashes.com field that may arrive as a JSON string, number,
// boolean or null. It always marshals back as a string.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	// numbers and booleans keep their literal form
	*t = Text(b)
	return nil
}

func (t Text) String() string { return string(t) }

// Int parses t, returning 0 when it is not an integer.
func (t Text) Int() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(t)))
	if err != nil {
		return 0
	}
	return n
}

// Float parses t, returning 0 when it is not a number.
func (t Text) Float() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	if err != nil {
		return 0
	}
	return f
}

// EscrowJob is a paid cracking job listed on the hashes.com escrow marketplace.
type EscrowJob struct {
	ID              Text `json:"id"`
	CreatedAt       Text `json:"createdAt"`
	LastUpdate      Text `json:"lastUpdate"`
	AlgorithmName   Text `json:"algorithmName"`
	AlgorithmID     Text `json:"algorithmId"`
	TotalHashes     Text `json:"totalHashes"`
	FoundHashes     Text `json:"foundHashes"`
	LeftHashes      Text `json:"leftHashes"`
	MaxCracksNeeded Text `json:"maxCracksNeeded"`
	Currency        Text `json:"currency"`
	PricePerHash    Text `json:"pricePerHash"`
	PricePerHashUSD Text `json:"pricePerHashUsd"`
	LeftList        Text `json:"leftList"`
	Hints           Text `json:"hints"`
}

type Algorithm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LookupFound struct {
	Hash      Text `json:"hash"`
	Salt      Text `json:"salt"`
	Plaintext Text `json:"plaintext"`
	Algorithm Text `json:"algorithm"`
}

type LookupResult struct {
	Founds []LookupFound `json:"founds"`
	Count  int           `json:"count"`
	Cost   Text          `json:"cost"`
}

type BalanceRow struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	USD      string `json:"usd"`
}

type BalanceReport struct {
	Rows     []BalanceRow `json:"rows"`
	TotalUSD float64      `json:"totalUsd"`
}

// JobStats summarises a set of escrow jobs the way the jobs table footer does.
type JobStats struct {
	Count        int                `json:"count"`
	Left         int                `json:"left"`
	Found        int                `json:"found"`
	EstimatedUSD float64            `json:"estimatedUsd"`
	CryptoTotals map[string]float64 `json:"cryptoTotals"`
}
