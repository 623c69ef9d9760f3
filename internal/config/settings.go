package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider kinds.
const (
	KindGemini = "gemini"
	KindOpenAI = "openai"
)

// Settings is the player-editable settings file.
type Settings struct {
	AI             AISettings         `yaml:"ai"`
	Content        ContentPreferences `yaml:"content"`
	CustomPrompt   string             `yaml:"custom_prompt"`
	Player         PlayerSettings     `yaml:"player"`
	Providers      []Provider         `yaml:"providers"`
	ProviderChoice int                `yaml:"provider_choice"`
	Game           GameSettings       `yaml:"game"`
}

// AISettings are the sampling parameters sent with every request.
type AISettings struct {
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float64       `yaml:"temperature"`
	FrequencyPenalty float64       `yaml:"frequency_penalty"`
	PresencePenalty  float64       `yaml:"presence_penalty"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ContentPreferences rate how often some content should appear, from 0
// (never) to 5 (frequently).
type ContentPreferences struct {
	Romance  int `yaml:"romance"`
	Violence int `yaml:"violence"`
	Gore     int `yaml:"gore"`
	Horror   int `yaml:"horror"`
}

// PlayerSettings describe the player character.
type PlayerSettings struct {
	Name           string  `yaml:"name"`
	Story          string  `yaml:"story"`
	AttributeValue float64 `yaml:"attribute_value"`
}

// Provider is one configured model endpoint. APIKey may be left empty to
// use the key from the environment.
type Provider struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model"`
}

// GameSettings tune the turn engine.
type GameSettings struct {
	CompactionThreshold int           `yaml:"compaction_threshold"`
	CompactionCooldown  int           `yaml:"compaction_cooldown"`
	CompressedLength    int           `yaml:"compressed_length"`
	DilutionBatch       int           `yaml:"dilution_batch"`
	RecentItems         int           `yaml:"recent_items"`
	SituationMin        int           `yaml:"situation_min"`
	SituationMax        int           `yaml:"situation_max"`
	SkipActionMode      bool          `yaml:"skip_action_mode"`
	NoOptions           bool          `yaml:"no_options"`
	ThinkCharges        int           `yaml:"think_charges"`
	TypewriterDelay     time.Duration `yaml:"typewriter_delay"`
}

// DefaultSettings returns the settings written on first run.
func DefaultSettings() *Settings {
	return &Settings{
		AI: AISettings{
			MaxTokens:        1024,
			Temperature:      0.9,
			FrequencyPenalty: 0.5,
			PresencePenalty:  0.1,
			Timeout:          2 * time.Minute,
		},
		Content: ContentPreferences{Romance: 1, Violence: 1, Gore: 1, Horror: 0},
		Player: PlayerSettings{
			Name:           "Player",
			AttributeValue: 20,
		},
		Providers: []Provider{
			{Name: "Gemini", Kind: KindGemini, Model: "gemini-2.5-flash"},
			{Name: "OpenAI", Kind: KindOpenAI, Model: "gpt-4o-mini"},
		},
		Game: GameSettings{
			CompactionThreshold: 24,
			CompactionCooldown:  10,
			CompressedLength:    320,
			DilutionBatch:       10,
			RecentItems:         12,
			SituationMin:        -10,
			SituationMax:        10,
			ThinkCharges:        3,
			TypewriterDelay:     15 * time.Millisecond,
		},
	}
}

// LoadSettings reads path. A missing file is created with the defaults.
// Fields absent from the file keep their default values.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, SaveSettings(path, s)
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings writes s to path as YAML.
func SaveSettings(path string, s *Settings) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Validate reports settings the game cannot run with.
func (s *Settings) Validate() error {
	var errs []error
	if len(s.Providers) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	} else if s.ProviderChoice < 0 || s.ProviderChoice >= len(s.Providers) {
		errs = append(errs, fmt.Errorf("provider_choice %d out of range", s.ProviderChoice))
	}
	for i, p := range s.Providers {
		if p.Kind != KindGemini && p.Kind != KindOpenAI {
			errs = append(errs, fmt.Errorf("provider %d: unknown kind %q", i, p.Kind))
		}
	}
	for name, v := range map[string]int{
		"romance": s.Content.Romance, "violence": s.Content.Violence,
		"gore": s.Content.Gore, "horror": s.Content.Horror,
	} {
		if v < 0 || v > 5 {
			errs = append(errs, fmt.Errorf("content.%s must be between 0 and 5, got %d", name, v))
		}
	}
	if s.Game.SituationMin > s.Game.SituationMax {
		errs = append(errs, errors.New("game.situation_min is above game.situation_max"))
	}
	return errors.Join(errs...)
}

// Provider returns the selected provider.
func (s *Settings) Provider() Provider {
	if s.ProviderChoice < 0 || s.ProviderChoice >= len(s.Providers) {
		return Provider{}
	}
	return s.Providers[s.ProviderChoice]
}

var frequencyWords = []string{
	"never appears",
	"rarely appears",
	"occasionally appears",
	"appears at a moderate rate",
	"appears often",
	"appears frequently",
}

// PreferencePrompt renders the content preferences for a prompt.
func (s *Settings) PreferencePrompt() string {
	word := func(v int) string {
		return frequencyWords[min(max(v, 0), len(frequencyWords)-1)]
	}
	var b strings.Builder
	b.WriteString("Player preferences:\n")
	fmt.Fprintf(&b, "- romantic content %s\n", word(s.Content.Romance))
	fmt.Fprintf(&b, "- graphic violence %s\n", word(s.Content.Violence))
	fmt.Fprintf(&b, "- gore %s\n", word(s.Content.Gore))
	fmt.Fprintf(&b, "- horror %s\n", word(s.Content.Horror))
	return b.String()
}

// CustomPromptText returns the player's own instructions followed by the
// content preferences.
func (s *Settings) CustomPromptText() string {
	var b strings.Builder
	if p := strings.TrimSpace(s.CustomPrompt); p != "" {
		b.WriteString("The player's own instructions, follow them strictly:\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString(s.PreferencePrompt())
	return b.String()
}
