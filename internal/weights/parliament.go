package weights

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Vector maps detector keys to weights in [0,1]. Weights need not sum
// to one; the combiner re-normalizes over the keys in play.
type Vector map[string]float64

// Authority identifies the actor class behind an amendment.
type Authority string

const (
	AuthorityOperator      Authority = "OPERATOR"
	AuthorityCongressional Authority = "CONGRESSIONAL"
	AuthoritySystem        Authority = "SYSTEM"
)

// Detector keys recognized by the parliament. Amendments touching any
// other key are rejected.
const (
	KeyCore              = "core"
	KeyMLAI              = "ml_ai"
	KeyRSI               = "rsi"
	KeyMACD              = "macd"
	KeyMACross           = "ma_cross"
	KeyBollinger         = "bollinger"
	KeyVolume            = "volume"
	KeySupportResistance = "support_resistance"
	KeyADX               = "adx"
	KeyROC               = "roc"
	KeyMarketStructure   = "market_structure"
	KeyReversal          = "reversal"
	KeySentiment         = "sentiment"
	KeyNews              = "news"
	KeyWhales            = "whales"
)

// KnownKeys returns the fixed detector key set, sorted.
func KnownKeys() []string {
	keys := []string{
		KeyCore, KeyMLAI, KeyRSI, KeyMACD, KeyMACross, KeyBollinger,
		KeyVolume, KeySupportResistance, KeyADX, KeyROC,
		KeyMarketStructure, KeyReversal, KeySentiment, KeyNews, KeyWhales,
	}
	sort.Strings(keys)
	return keys
}

// DefaultVector returns the compiled-in default weights.
func DefaultVector() Vector {
	return Vector{
		KeyCore:              0.30,
		KeyMLAI:              0.20,
		KeyRSI:               0.15,
		KeyMACD:              0.15,
		KeyMACross:           0.10,
		KeyBollinger:         0.10,
		KeyVolume:            0.10,
		KeySupportResistance: 0.10,
		KeyADX:               0.05,
		KeyROC:               0.05,
		KeyMarketStructure:   0.25,
		KeyReversal:          0.15,
		KeySentiment:         0.10,
		KeyNews:              0.05,
		KeyWhales:            0.05,
	}
}

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}

// Amendment records one accepted weight change. Append-only: once
// recorded it is never mutated or deleted.
type Amendment struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Authority Authority `json:"authority"`
	Reason    string    `json:"reason"`
	Before    Vector    `json:"before"`
	After     Vector    `json:"after"`
}

// Recorder mirrors accepted amendments to durable storage. Errors are
// the recorder's problem; the in-memory history is the source of truth.
type Recorder interface {
	RecordAmendment(a Amendment)
}

// Parliament holds the weight vector currently in effect and its
// amendment history. Writes are serialized through a single mutex so
// amendments are linearizable; readers get snapshot copies.
type Parliament struct {
	mu       sync.RWMutex
	current  Vector
	history  []Amendment
	defaults Vector
	known    map[string]bool

	audit    zerolog.Logger
	recorder Recorder
}

// NewParliament starts with the compiled-in default vector and an
// empty history.
func NewParliament(audit zerolog.Logger, recorder Recorder) *Parliament {
	known := make(map[string]bool)
	for _, k := range KnownKeys() {
		known[k] = true
	}
	return &Parliament{
		current:  DefaultVector(),
		defaults: DefaultVector(),
		known:    known,
		audit:    audit,
		recorder: recorder,
	}
}

// GetWeights returns an immutable snapshot of the vector in effect.
func (p *Parliament) GetWeights() Vector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Clone()
}

// ProposeAmendment validates the changed keys and, if every change is
// acceptable, appends an amendment and swaps the vector atomically.
// Validation is all-or-nothing: any bad key or out-of-range weight
// rejects the whole proposal and leaves the vector untouched.
func (p *Parliament) ProposeAmendment(authority Authority, reason string, changes Vector) (Amendment, error) {
	if len(changes) == 0 {
		return Amendment{}, fmt.Errorf("amendment contains no changes")
	}

	var badKeys []string
	for key, w := range changes {
		if !p.known[key] {
			badKeys = append(badKeys, fmt.Sprintf("unknown key %q", key))
			continue
		}
		if w < 0 || w > 1 {
			badKeys = append(badKeys, fmt.Sprintf("weight for %q out of range [0,1]: %v", key, w))
		}
	}
	if len(badKeys) > 0 {
		sort.Strings(badKeys)
		return Amendment{}, fmt.Errorf("amendment rejected: %s", strings.Join(badKeys, "; "))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	after := p.current.Clone()
	for key, w := range changes {
		after[key] = w
	}
	return p.apply(authority, reason, after), nil
}

// ResetToDefault restores the compiled-in default vector, recorded as
// an amendment like any other change.
func (p *Parliament) ResetToDefault(authority Authority, reason string) Amendment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apply(authority, reason, p.defaults.Clone())
}

// apply assumes the write lock is held.
func (p *Parliament) apply(authority Authority, reason string, after Vector) Amendment {
	a := Amendment{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Authority: authority,
		Reason:    reason,
		Before:    p.current.Clone(),
		After:     after.Clone(),
	}
	p.history = append(p.history, a)
	p.current = after

	p.audit.Info().
		Str("amendment_id", a.ID).
		Str("authority", string(authority)).
		Str("reason", reason).
		Int("history_len", len(p.history)).
		Msg("weight amendment applied")

	if p.recorder != nil {
		p.recorder.RecordAmendment(a)
	}
	return a
}

// GetHistory returns up to limit amendments, most recent first.
// limit <= 0 returns the full history.
func (p *Parliament) GetHistory(limit int) []Amendment {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Amendment, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, p.history[i])
	}
	return out
}
