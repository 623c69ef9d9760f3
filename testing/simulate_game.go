package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tatianab/dicetale/internal/chronicle"
	"github.com/tatianab/dicetale/internal/config"
	"github.com/tatianab/dicetale/internal/engine"
	"github.com/tatianab/dicetale/internal/llm"
	"github.com/tatianab/dicetale/internal/models"
)

const maxTurns = 10

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	models.SaveDir = cfg.SaveDir

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	settings.Game.TypewriterDelay = 0

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// The same provider narrates and plays.
	gen, closer, err := llm.NewFromSettings(ctx, cfg, settings)
	if err != nil {
		log.Fatalf("Failed to create provider: %v", err)
	}
	defer closer.Close()

	opts := engine.Options{
		Generator: gen,
		Settings:  settings,
		Logger:    logger,
	}
	var store *chronicle.Store
	if cfg.ChronicleDB != "" {
		if store, err = chronicle.Open(cfg.ChronicleDB); err != nil {
			log.Fatalf("Failed to open chronicle: %v", err)
		}
		defer store.Close()
		opts.Recorder = store
	}

	eng, err := engine.New(opts)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	fmt.Println("--- Opening ---")
	res, err := eng.Start(ctx, "")
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	printScene(eng, res)

	for turn := 1; turn <= maxTurns && !res.GameOver; turn++ {
		fmt.Printf("--- Turn %d ---\n", turn)

		d := choose(ctx, gen, eng)
		if d.Custom != "" {
			fmt.Printf("Player Action: %s\n", d.Custom)
		} else {
			fmt.Printf("Player Option: %d\n", d.OptionID)
		}

		res, err = eng.PlayTurn(ctx, d)
		if errors.Is(err, engine.ErrUnknownOption) {
			fmt.Println("Player picked a missing option, skipping.")
			continue
		}
		if err != nil {
			fmt.Printf("Error processing turn: %v\n", err)
			break
		}
		if res.Blocked {
			fmt.Printf("Blocked: %s\n\n", res.Requirement)
			continue
		}
		printScene(eng, res)

		if _, err := models.Save(eng.Snapshot(), models.AutosaveSlot, false); err != nil {
			fmt.Printf("Autosave failed: %v\n", err)
		}
	}

	if res.GameOver {
		fmt.Println("Game Ended: Player Lost!")
	}
	fmt.Printf("Tokens used: %d over %d turns\n", eng.Tokens.Total, eng.Turns())

	if store != nil {
		path := eng.GameID + ".pdf"
		if err := store.ExportPDF(ctx, eng.GameID, "The tale of "+eng.PlayerName, path); err != nil {
			fmt.Printf("Export failed: %v\n", err)
		} else {
			fmt.Printf("Story exported to %s\n", path)
		}
	}
}

func printScene(eng *engine.Engine, res engine.TurnResult) {
	if res.Check != nil {
		fmt.Printf("Check: %s\n", engine.TierLabel(res.Check.Tier))
	}
	fmt.Printf("GM Outcome: %s\n", eng.Description)
	for _, n := range eng.DrainNotices() {
		fmt.Printf("Effect: %s\n", n.Text)
	}
	for _, o := range eng.Options {
		fmt.Printf("  %d. %s (%s)\n", o.ID, o.Text, o.Type)
	}
	st := eng.State
	fmt.Printf("Situation: %+d, Inventory: %v\n\n", st.Situation.Get(), st.Inventory.Items.Names())
}

// choose asks the player model for an option number or its own action.
func choose(ctx context.Context, gen llm.Generator, eng *engine.Engine) engine.Decision {
	var opts strings.Builder
	for _, o := range eng.Options {
		fmt.Fprintf(&opts, "%d. %s\n", o.ID, o.Text)
	}

	prompt := fmt.Sprintf(`You are playing a text-based adventure game.
Current scene: %s

Attributes: %s
Inventory: %v

Options:
%s
Reply with ONLY the number of the option you pick, or with a short action of your own if none fits.`,
		eng.Description,
		eng.State.Attributes.Render(),
		eng.State.Inventory.Items.Names(),
		opts.String(),
	)

	resp, err := gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 256, Temperature: 1})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return fallback(eng)
	}
	answer := strings.Trim(strings.TrimSpace(resp.Text), ".")
	if id, err := strconv.Atoi(answer); err == nil {
		return engine.Decision{OptionID: id}
	}
	return engine.Decision{Custom: answer}
}

func fallback(eng *engine.Engine) engine.Decision {
	if len(eng.Options) == 0 {
		return engine.Decision{Custom: "look around"}
	}
	return engine.Decision{OptionID: eng.Options[0].ID}
}
