package agent

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mtzanidakis/studioflow/internal/config"
)

// Preferences are small facts remembered about a client or project, such
// as the last project type seen.
type Preferences map[string]string

// Memory is a bounded, best-effort store of recent inputs. A miss or an
// eviction must never change an agent's correctness.
type Memory interface {
	Recall(agent, key string) (Preferences, bool)
	Remember(agent, key string, prefs Preferences)
}

type CacheMemory struct {
	cache *ristretto.Cache[string, Preferences]
	ttl   time.Duration
}

func NewMemory(cfg config.MemoryConfig) (*CacheMemory, error) {
	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	counters := maxCost / 100 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Preferences]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &CacheMemory{cache: c, ttl: cfg.TTL}, nil
}

func (m *CacheMemory) Recall(agent, key string) (Preferences, bool) {
	if key == "" {
		return nil, false
	}
	return m.cache.Get(agent + ":" + key)
}

// Remember merges prefs into what is already known for key.
func (m *CacheMemory) Remember(agent, key string, prefs Preferences) {
	if key == "" || len(prefs) == 0 {
		return
	}
	merged := Preferences{}
	if prev, ok := m.Recall(agent, key); ok {
		for k, v := range prev {
			merged[k] = v
		}
	}
	var cost int64
	for k, v := range prefs {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range merged {
		cost += int64(len(k) + len(v))
	}
	m.cache.SetWithTTL(agent+":"+key, merged, cost, m.ttl)
	m.cache.Wait()
}

func (m *CacheMemory) Close() {
	m.cache.Close()
}

type nopMemory struct{}

func (nopMemory) Recall(string, string) (Preferences, bool) { return nil, false }
func (nopMemory) Remember(string, string, Preferences)      {}
