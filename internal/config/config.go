package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunables holds every behavioural knob of the engine. All fields have
// working defaults; a YAML file overrides whichever keys it names. The
// probabilities are tuned heuristics, not derived values.
type Tunables struct {
	// Debounce / batching windows
	BaseWindow     time.Duration `yaml:"base_window"`
	FragmentWindow time.Duration `yaml:"fragment_window"`
	TypingGrace    time.Duration `yaml:"typing_grace"`
	MaxWaitSoft    time.Duration `yaml:"max_wait_soft"`
	MaxWaitHard    time.Duration `yaml:"max_wait_hard"`
	QuietPoll      time.Duration `yaml:"quiet_poll"`
	ForcedWindow   time.Duration `yaml:"forced_window"` // used once batch age passes max_wait_soft
	FragmentHold   time.Duration `yaml:"fragment_hold"` // extra hold after a dangling fragment

	// Conversation lifecycle
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxPresence     time.Duration `yaml:"max_presence"`
	SoftExitTimeout time.Duration `yaml:"soft_exit_timeout"`
	RecentEndWindow time.Duration `yaml:"recent_end_window"`

	// Decision policy
	WaitLoopCeiling int     `yaml:"wait_loop_ceiling"`
	SilenceChance   float64 `yaml:"silence_chance"` // chance to stay quiet on a non-direct complete batch
	MinCompleteLen  int     `yaml:"min_complete_len"`

	// Interjections
	SecondaryWindow     time.Duration `yaml:"secondary_window"`
	SecondaryTurns      int           `yaml:"secondary_turns"`
	SecondaryCooldown   time.Duration `yaml:"secondary_cooldown"`
	SpontaneousChance   float64       `yaml:"spontaneous_chance"`
	SpontaneousCooldown time.Duration `yaml:"spontaneous_cooldown"`        // per author
	SpontaneousGlobal   time.Duration `yaml:"spontaneous_global_cooldown"` // whole engine

	// Topic sessions
	TopicMinKeywords int           `yaml:"topic_min_keywords"`
	TopicMinShared   int           `yaml:"topic_min_shared"`
	TopicSimilarity  float64       `yaml:"topic_similarity"`
	TopicTTL         time.Duration `yaml:"topic_ttl"`
	TopicKeywordCap  int           `yaml:"topic_keyword_cap"`

	// Context assembly / output
	ContextEntries  int `yaml:"context_entries"`  // max entries handed to the generator
	ContextAuthors  int `yaml:"context_authors"`  // max member buffers merged from a topic session
	SelfMemoryCap   int `yaml:"self_memory_cap"`  // recent own outputs kept per author
	ChannelMemCap   int `yaml:"channel_memory_cap"`
	ReplyMaxChars   int `yaml:"reply_max_chars"`
}

// Defaults returns the baseline tunables.
func Defaults() Tunables {
	return Tunables{
		BaseWindow:     3 * time.Second,
		FragmentWindow: 8 * time.Second,
		TypingGrace:    6 * time.Second,
		MaxWaitSoft:    20 * time.Second,
		MaxWaitHard:    45 * time.Second,
		QuietPoll:      1 * time.Second,
		ForcedWindow:   1500 * time.Millisecond,
		FragmentHold:   5 * time.Second,

		IdleTimeout:     5 * time.Minute,
		MaxPresence:     30 * time.Minute,
		SoftExitTimeout: 2 * time.Minute,
		RecentEndWindow: 90 * time.Second,

		WaitLoopCeiling: 6,
		SilenceChance:   0.15,
		MinCompleteLen:  18,

		SecondaryWindow:     60 * time.Second,
		SecondaryTurns:      2,
		SecondaryCooldown:   3 * time.Minute,
		SpontaneousChance:   0.25,
		SpontaneousCooldown: 10 * time.Minute,
		SpontaneousGlobal:   5 * time.Minute,

		TopicMinKeywords: 3,
		TopicMinShared:   2,
		TopicSimilarity:  0.25,
		TopicTTL:         10 * time.Minute,
		TopicKeywordCap:  40,

		ContextEntries: 12,
		ContextAuthors: 3,
		SelfMemoryCap:  6,
		ChannelMemCap:  10,
		ReplyMaxChars:  280,
	}
}

// fileTunables mirrors Tunables for YAML parsing. Durations are strings
// in time.ParseDuration syntax ("3s", "1500ms"); absent keys keep defaults.
type fileTunables struct {
	BaseWindow     *string `yaml:"base_window"`
	FragmentWindow *string `yaml:"fragment_window"`
	TypingGrace    *string `yaml:"typing_grace"`
	MaxWaitSoft    *string `yaml:"max_wait_soft"`
	MaxWaitHard    *string `yaml:"max_wait_hard"`
	QuietPoll      *string `yaml:"quiet_poll"`
	ForcedWindow   *string `yaml:"forced_window"`
	FragmentHold   *string `yaml:"fragment_hold"`

	IdleTimeout     *string `yaml:"idle_timeout"`
	MaxPresence     *string `yaml:"max_presence"`
	SoftExitTimeout *string `yaml:"soft_exit_timeout"`
	RecentEndWindow *string `yaml:"recent_end_window"`

	WaitLoopCeiling *int     `yaml:"wait_loop_ceiling"`
	SilenceChance   *float64 `yaml:"silence_chance"`
	MinCompleteLen  *int     `yaml:"min_complete_len"`

	SecondaryWindow     *string  `yaml:"secondary_window"`
	SecondaryTurns      *int     `yaml:"secondary_turns"`
	SecondaryCooldown   *string  `yaml:"secondary_cooldown"`
	SpontaneousChance   *float64 `yaml:"spontaneous_chance"`
	SpontaneousCooldown *string  `yaml:"spontaneous_cooldown"`
	SpontaneousGlobal   *string  `yaml:"spontaneous_global_cooldown"`

	TopicMinKeywords *int     `yaml:"topic_min_keywords"`
	TopicMinShared   *int     `yaml:"topic_min_shared"`
	TopicSimilarity  *float64 `yaml:"topic_similarity"`
	TopicTTL         *string  `yaml:"topic_ttl"`
	TopicKeywordCap  *int     `yaml:"topic_keyword_cap"`

	ContextEntries *int `yaml:"context_entries"`
	ContextAuthors *int `yaml:"context_authors"`
	SelfMemoryCap  *int `yaml:"self_memory_cap"`
	ChannelMemCap  *int `yaml:"channel_memory_cap"`
	ReplyMaxChars  *int `yaml:"reply_max_chars"`
}

// Load reads tunables from a YAML file, layered over the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (Tunables, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("read tunables: %w", err)
	}
	var f fileTunables
	if err := yaml.Unmarshal(data, &f); err != nil {
		return t, fmt.Errorf("parse tunables: %w", err)
	}
	if err := f.apply(&t); err != nil {
		return t, err
	}
	return t, nil
}

func (f *fileTunables) apply(t *Tunables) error {
	durs := []struct {
		src *string
		dst *time.Duration
		key string
	}{
		{f.BaseWindow, &t.BaseWindow, "base_window"},
		{f.FragmentWindow, &t.FragmentWindow, "fragment_window"},
		{f.TypingGrace, &t.TypingGrace, "typing_grace"},
		{f.MaxWaitSoft, &t.MaxWaitSoft, "max_wait_soft"},
		{f.MaxWaitHard, &t.MaxWaitHard, "max_wait_hard"},
		{f.QuietPoll, &t.QuietPoll, "quiet_poll"},
		{f.ForcedWindow, &t.ForcedWindow, "forced_window"},
		{f.FragmentHold, &t.FragmentHold, "fragment_hold"},
		{f.IdleTimeout, &t.IdleTimeout, "idle_timeout"},
		{f.MaxPresence, &t.MaxPresence, "max_presence"},
		{f.SoftExitTimeout, &t.SoftExitTimeout, "soft_exit_timeout"},
		{f.RecentEndWindow, &t.RecentEndWindow, "recent_end_window"},
		{f.SecondaryWindow, &t.SecondaryWindow, "secondary_window"},
		{f.SecondaryCooldown, &t.SecondaryCooldown, "secondary_cooldown"},
		{f.SpontaneousCooldown, &t.SpontaneousCooldown, "spontaneous_cooldown"},
		{f.SpontaneousGlobal, &t.SpontaneousGlobal, "spontaneous_global_cooldown"},
		{f.TopicTTL, &t.TopicTTL, "topic_ttl"},
	}
	for _, d := range durs {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("tunable %s: %w", d.key, err)
		}
		*d.dst = v
	}

	ints := []struct {
		src *int
		dst *int
	}{
		{f.WaitLoopCeiling, &t.WaitLoopCeiling},
		{f.MinCompleteLen, &t.MinCompleteLen},
		{f.SecondaryTurns, &t.SecondaryTurns},
		{f.TopicMinKeywords, &t.TopicMinKeywords},
		{f.TopicMinShared, &t.TopicMinShared},
		{f.TopicKeywordCap, &t.TopicKeywordCap},
		{f.ContextEntries, &t.ContextEntries},
		{f.ContextAuthors, &t.ContextAuthors},
		{f.SelfMemoryCap, &t.SelfMemoryCap},
		{f.ChannelMemCap, &t.ChannelMemCap},
		{f.ReplyMaxChars, &t.ReplyMaxChars},
	}
	for _, n := range ints {
		if n.src != nil {
			*n.dst = *n.src
		}
	}

	if f.SilenceChance != nil {
		t.SilenceChance = *f.SilenceChance
	}
	if f.SpontaneousChance != nil {
		t.SpontaneousChance = *f.SpontaneousChance
	}
	if f.TopicSimilarity != nil {
		t.TopicSimilarity = *f.TopicSimilarity
	}
	return nil
}

// Env holds deployment settings read from the environment.
type Env struct {
	DiscordToken   string
	DiscordChannel string // optional channel allowlist
	BotNames       string // comma-separated name-call aliases
	OllamaURL      string
	OllamaModel    string
	StatePath      string
	TunablesPath   string
}

// FromEnv collects deployment settings from environment variables.
func FromEnv() Env {
	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}
	return Env{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DiscordChannel: os.Getenv("DISCORD_CHANNEL_ID"),
		BotNames:       os.Getenv("BOT_NAMES"),
		OllamaURL:      os.Getenv("OLLAMA_URL"),
		OllamaModel:    os.Getenv("OLLAMA_MODEL"),
		StatePath:      statePath,
		TunablesPath:   os.Getenv("TUNABLES_PATH"),
	}
}
