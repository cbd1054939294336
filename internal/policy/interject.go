package policy

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InterjectMode is the outcome class of an interjection check.
type InterjectMode string

const (
	SecondaryStart    InterjectMode = "secondary_start"
	SecondaryContinue InterjectMode = "secondary_continue"
	Spontaneous       InterjectMode = "spontaneous"
	Refused           InterjectMode = "refused"
)

// InterjectVerdict is the tagged result of an interjection check.
type InterjectVerdict struct {
	Mode   InterjectMode
	Reason string
}

// Allowed reports whether the engine may speak.
func (v InterjectVerdict) Allowed() bool {
	return v.Mode != Refused
}

// Refusal reasons.
const (
	RefuseNoise             = "noise"
	RefuseSecondaryCooldown = "secondary_cooldown"
	RefuseSecondaryTurns    = "secondary_turn_limit"
	RefuseSpontaneousGlobal = "spontaneous_global_cooldown"
	RefuseSpontaneousAuthor = "spontaneous_cooldown"
	RefuseSpontaneousDraw   = "spontaneous_draw"
)

// InterjectConfig holds the interjection gates.
type InterjectConfig struct {
	SecondaryWindow     time.Duration
	SecondaryTurns      int
	SecondaryCooldown   time.Duration
	SpontaneousChance   float64
	SpontaneousCooldown time.Duration // per author
	SpontaneousGlobal   time.Duration // whole engine
}

type secondaryWindow struct {
	expiry    time.Time
	turnsUsed int
}

// Interjector decides whether a direct message from an author outside the
// current focus earns a brief secondary reply, or whether an unfocused
// direct message earns a spontaneous one. All gates live behind one lock.
type Interjector struct {
	mu  sync.Mutex
	cfg InterjectConfig
	rng *rand.Rand
	now func() time.Time

	secondary       map[string]*secondaryWindow
	lastSecondary   map[string]time.Time
	lastSpontaneous map[string]time.Time
	global          *rate.Limiter
}

// NewInterjector creates the policy. now may be nil.
func NewInterjector(cfg InterjectConfig, rng *rand.Rand, now func() time.Time) *Interjector {
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	if cfg.SpontaneousGlobal > 0 {
		limit = rate.Every(cfg.SpontaneousGlobal)
	}
	return &Interjector{
		cfg:             cfg,
		rng:             rng,
		now:             now,
		secondary:       make(map[string]*secondaryWindow),
		lastSecondary:   make(map[string]time.Time),
		lastSpontaneous: make(map[string]time.Time),
		global:          rate.NewLimiter(limit, 1),
	}
}

// Evaluate gates a direct message from authorID. engagedElsewhere means
// the engine's focus is currently on a different author; noise means the
// text carries no content worth interjecting over.
func (i *Interjector) Evaluate(authorID string, noise, engagedElsewhere bool) InterjectVerdict {
	i.mu.Lock()
	defer i.mu.Unlock()

	if noise {
		return InterjectVerdict{Mode: Refused, Reason: RefuseNoise}
	}

	now := i.now()
	if engagedElsewhere {
		return i.evalSecondary(authorID, now)
	}
	return i.evalSpontaneous(authorID, now)
}

func (i *Interjector) evalSecondary(authorID string, now time.Time) InterjectVerdict {
	if win, ok := i.secondary[authorID]; ok && now.Before(win.expiry) {
		if win.turnsUsed < i.cfg.SecondaryTurns {
			win.turnsUsed++
			return InterjectVerdict{Mode: SecondaryContinue}
		}
		return InterjectVerdict{Mode: Refused, Reason: RefuseSecondaryTurns}
	}

	if last, ok := i.lastSecondary[authorID]; ok && now.Sub(last) < i.cfg.SecondaryCooldown {
		return InterjectVerdict{Mode: Refused, Reason: RefuseSecondaryCooldown}
	}

	i.secondary[authorID] = &secondaryWindow{
		expiry:    now.Add(i.cfg.SecondaryWindow),
		turnsUsed: 1,
	}
	i.lastSecondary[authorID] = now
	return InterjectVerdict{Mode: SecondaryStart}
}

func (i *Interjector) evalSpontaneous(authorID string, now time.Time) InterjectVerdict {
	if last, ok := i.lastSpontaneous[authorID]; ok && now.Sub(last) < i.cfg.SpontaneousCooldown {
		return InterjectVerdict{Mode: Refused, Reason: RefuseSpontaneousAuthor}
	}

	// Peek the global limiter before the draw so a failed draw does not
	// burn the shared token.
	if i.global.TokensAt(now) < 1 {
		return InterjectVerdict{Mode: Refused, Reason: RefuseSpontaneousGlobal}
	}

	if i.rng.Float64() >= i.cfg.SpontaneousChance {
		return InterjectVerdict{Mode: Refused, Reason: RefuseSpontaneousDraw}
	}

	i.global.AllowN(now, 1)
	i.lastSpontaneous[authorID] = now
	return InterjectVerdict{Mode: Spontaneous}
}

// Reset clears the author's interjection state (conversation ended).
func (i *Interjector) Reset(authorID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.secondary, authorID)
}
