package main

import (
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/papo-dev/papo/internal/address"
	"github.com/papo-dev/papo/internal/archive"
	"github.com/papo-dev/papo/internal/compose"
	"github.com/papo-dev/papo/internal/config"
	"github.com/papo-dev/papo/internal/effectors"
	"github.com/papo-dev/papo/internal/engine"
	"github.com/papo-dev/papo/internal/generate"
	"github.com/papo-dev/papo/internal/journal"
	"github.com/papo-dev/papo/internal/memory"
	"github.com/papo-dev/papo/internal/policy"
	"github.com/papo-dev/papo/internal/presence"
	"github.com/papo-dev/papo/internal/senses"
	"github.com/papo-dev/papo/internal/topics"
	"github.com/papo-dev/papo/internal/types"
)

func main() {
	log.Println("papo - conversational turn orchestrator")
	log.Println("=======================================")

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	env := config.FromEnv()
	if env.DiscordToken == "" {
		log.Fatal("DISCORD_TOKEN environment variable required")
	}

	tun, err := config.Load(env.TunablesPath)
	if err != nil {
		log.Fatalf("Failed to load tunables: %v", err)
	}

	// Ensure state directory exists
	os.MkdirAll(env.StatePath, 0755)

	// Persistent stores
	arch, err := archive.Open(env.StatePath)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer arch.Close()
	jnl := journal.New(env.StatePath)

	// In-memory stores
	buffers := memory.NewAuthorBuffers(tun.ContextEntries)
	selfMem := memory.NewSelfMemory(tun.SelfMemoryCap)
	chanMem := memory.NewChannelMemory(tun.ChannelMemCap)

	// Topic sessions
	reg := topics.NewRegistry(topics.Config{
		MinKeywords: tun.TopicMinKeywords,
		MinShared:   tun.TopicMinShared,
		Similarity:  tun.TopicSimilarity,
		TTL:         tun.TopicTTL,
		KeywordCap:  tun.TopicKeywordCap,
	}, nil)
	reg.Start(time.Minute)
	defer reg.Stop()

	// Generation backend
	gen := generate.NewClient(env.OllamaURL, env.OllamaModel)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	composer := compose.New(compose.Config{
		ContextEntries: tun.ContextEntries,
		ContextAuthors: tun.ContextAuthors,
		ReplyMaxChars:  tun.ReplyMaxChars,
	}, gen, buffers, selfMem, chanMem, reg, rng)

	decider := policy.NewDecider(policy.DecisionConfig{
		MinCompleteLen:  tun.MinCompleteLen,
		SilenceChance:   tun.SilenceChance,
		WaitLoopCeiling: tun.WaitLoopCeiling,
		MaxWaitSoft:     tun.MaxWaitSoft,
	}, rng, gen)

	interject := policy.NewInterjector(policy.InterjectConfig{
		SecondaryWindow:     tun.SecondaryWindow,
		SecondaryTurns:      tun.SecondaryTurns,
		SecondaryCooldown:   tun.SecondaryCooldown,
		SpontaneousChance:   tun.SpontaneousChance,
		SpontaneousCooldown: tun.SpontaneousCooldown,
		SpontaneousGlobal:   tun.SpontaneousGlobal,
	}, rng, nil)

	// The engine is created after the sense connects so the detector
	// knows the bot's own user id; events arriving before that are dropped.
	var eng atomic.Pointer[engine.Engine]

	sense, err := senses.NewDiscordSense(senses.DiscordConfig{
		Token:     env.DiscordToken,
		ChannelID: env.DiscordChannel,
	}, func(m types.Message) {
		if e := eng.Load(); e != nil {
			e.HandleMessage(m)
		}
	}, func(channelID, authorID string) {
		if e := eng.Load(); e != nil {
			e.NotifyTyping(channelID, authorID)
		}
	})
	if err != nil {
		log.Fatalf("Failed to create Discord sense: %v", err)
	}
	if err := sense.Start(); err != nil {
		log.Fatalf("Failed to start Discord sense: %v", err)
	}
	defer sense.Stop()

	names := []string{"papo"}
	if env.BotNames != "" {
		names = append(names, strings.Split(env.BotNames, ",")...)
	}

	e := engine.New(tun, engine.Deps{
		SelfID:    sense.BotID(),
		Detector:  address.NewDetector(sense.BotID(), names),
		Presence:  presence.NewTracker(),
		Decider:   decider,
		Interject: interject,
		Composer:  composer,
		Topics:    reg,
		Buffers:   buffers,
		SelfMem:   selfMem,
		Sender:    effectors.NewDiscordEffector(sense.Session()),
		Journal:   jnl,
		Archive:   arch,
	})
	eng.Store(e)
	defer e.Stop()

	log.Println("[main] All subsystems started. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")
}
