// Package policy classifies finalized batches into respond/ignore/wait
// outcomes and gates interjections from authors outside the current
// conversational focus.
package policy

import (
	"context"
	"math/rand"
	"time"

	"github.com/papo-dev/papo/internal/logging"
	"github.com/papo-dev/papo/internal/types"
)

// Engagement is the result of the optional external ternary classifier.
type Engagement int

const (
	EngagementEngaged Engagement = iota // keep talking
	EngagementIgnore                    // not addressed to us
	EngagementDead                      // conversation is over
)

// Escalator is the optional external classifier consulted for batches the
// heuristics cannot place. Implementations must treat malformed model
// output as EngagementEngaged rather than returning it as an error.
type Escalator interface {
	Classify(ctx context.Context, text string) (Engagement, error)
}

// DecisionConfig holds the decision policy knobs.
type DecisionConfig struct {
	MinCompleteLen  int
	SilenceChance   float64
	WaitLoopCeiling int
	MaxWaitSoft     time.Duration
}

// Decider turns a finalized batch into a Decision. The random source is
// injected so tests can force both sides of the silence draw.
type Decider struct {
	cfg       DecisionConfig
	rng       *rand.Rand
	escalator Escalator // may be nil
}

// NewDecider creates a decision policy. rng must not be shared without
// synchronization; the engine calls Decide from one goroutine per batch
// but guards the source itself.
func NewDecider(cfg DecisionConfig, rng *rand.Rand, escalator Escalator) *Decider {
	return &Decider{cfg: cfg, rng: rng, escalator: escalator}
}

// Input is everything the policy looks at for one batch.
type Input struct {
	Cleaned     string
	Raw         string
	Direct      bool
	HardCeiling bool          // the max_wait_hard bound forced this flush
	Age         time.Duration // batch age at decision time
	WaitLoops   int           // WAIT outcomes already taken for this batch
}

// Decide classifies the batch. Rules apply in order; the anti-loop rule
// upgrades any would-be WAIT once the loop counter or age bound is hit,
// so every batch terminates.
func (d *Decider) Decide(ctx context.Context, in Input) types.Decision {
	text := in.Cleaned
	if text == "" {
		text = in.Raw
	}

	if text == "" {
		return types.Ignore(types.ReasonEmpty)
	}

	if IsGreeting(text) {
		return types.Respond(types.ReasonGreeting)
	}

	if IsNoise(text) {
		return types.Ignore(types.ReasonNoise)
	}

	if IsDanglingFragment(text) {
		if in.HardCeiling {
			return types.Respond(types.ReasonFragmentTimeout)
		}
		return d.waitOrCutoff(in)
	}

	if IsComplete(text, d.cfg.MinCompleteLen) {
		if !in.Direct && d.rng.Float64() < d.cfg.SilenceChance {
			return types.Ignore(types.ReasonRandomSilence)
		}
		return types.Respond(types.ReasonAllowed)
	}

	return d.escalate(ctx, text)
}

// waitOrCutoff applies the anti-loop rule to a would-be WAIT.
func (d *Decider) waitOrCutoff(in Input) types.Decision {
	if in.WaitLoops >= d.cfg.WaitLoopCeiling || in.Age > d.cfg.MaxWaitSoft+2*time.Second {
		return types.Respond(types.ReasonWaitCutoff)
	}
	return types.Wait(types.ReasonFragmentWait)
}

// escalate consults the external classifier for the ambiguous
// "not complete, not fragment" case. Failures degrade to the permissive
// outcome: treat the conversation as engaged.
func (d *Decider) escalate(ctx context.Context, text string) types.Decision {
	if d.escalator == nil {
		return types.Ignore(types.ReasonNotComplete)
	}

	engagement, err := d.escalator.Classify(ctx, text)
	if err != nil {
		logging.Debug("policy", "escalation failed, defaulting to engaged: %v", err)
		engagement = EngagementEngaged
	}

	switch engagement {
	case EngagementIgnore:
		return types.Ignore(types.ReasonNotComplete)
	case EngagementDead:
		return types.Ignore(types.ReasonDead)
	default:
		return types.Respond(types.ReasonAllowed)
	}
}
