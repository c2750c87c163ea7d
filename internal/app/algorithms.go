package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

const AlgorithmsFileName = "algorithms.json"

var ErrEmptyAlgorithmList = errors.New("hashes.com returned no algorithms")

type algorithmsFile struct {
	UpdatedAt  time.Time          `json:"updatedAt"`
	Algorithms []domain.Algorithm `json:"algorithms"`
}

// AlgorithmCatalog caches the algorithm list in memory and in a local file so
// filters keep working offline.
type AlgorithmCatalog struct {
	path   string
	client *HashesClient
	logger zerolog.Logger

	mu        sync.RWMutex
	list      []domain.Algorithm
	updatedAt time.Time
}

func NewAlgorithmCatalog(path string, client *HashesClient, logger zerolog.Logger) *AlgorithmCatalog {
	c := &AlgorithmCatalog{path: path, client: client, logger: logger.With().Str("component", "algorithms").Logger()}
	c.load()
	return c
}

func (c *AlgorithmCatalog) load() {
	if c.path == "" {
		return
	}
	b, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn().Err(err).Str("path", c.path).Msg("cannot read algorithm catalogue")
		}
		return
	}
	var f algorithmsFile
	if err := json.Unmarshal(b, &f); err != nil {
		c.logger.Warn().Err(err).Str("path", c.path).Msg("corrupt algorithm catalogue, ignoring")
		return
	}
	SortAlgorithms(f.Algorithms)
	c.list = f.Algorithms
	c.updatedAt = f.UpdatedAt
}

func (c *AlgorithmCatalog) List() []domain.Algorithm {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Algorithm(nil), c.list...)
}

func (c *AlgorithmCatalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Options renders the algorithm filter choices: "All" then "<id> - <name>".
func (c *AlgorithmCatalog) Options() []string {
	list := c.List()
	out := make([]string, 0, len(list)+1)
	out = append(out, "All")
	for _, a := range list {
		out = append(out, a.ID+" - "+a.Name)
	}
	return out
}

// Refresh fetches the list from hashes.com and rewrites the catalogue file.
func (c *AlgorithmCatalog) Refresh(ctx context.Context) ([]domain.Algorithm, error) {
	list, err := c.client.Algorithms(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrEmptyAlgorithmList
	}
	now := time.Now().UTC()

	c.mu.Lock()
	c.list = list
	c.updatedAt = now
	c.mu.Unlock()

	if strings.TrimSpace(c.path) == "" {
		return list, nil
	}
	b, err := json.MarshalIndent(algorithmsFile{UpdatedAt: now, Algorithms: list}, "", "  ")
	if err != nil {
		return list, err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return list, err
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(b)); err != nil {
		return list, err
	}
	c.logger.Info().Int("count", len(list)).Msg("algorithm catalogue updated")
	return list, nil
}
