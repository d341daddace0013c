package config

// #region imports
import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #endregion imports

// #region defaults
const (
	defaultDBPath         = "doctor_pipeline.db"
	defaultPromptsDir     = "prompts"
	defaultPrimaryURL     = "https://api.openai.com/v1"
	defaultSecondaryURL   = "https://api.deepseek.com/v1"
	defaultPrimaryModel   = "gpt-4"
	defaultSecondaryModel = "deepseek-chat"
	defaultSTTURL         = "http://localhost:8000/transcribe"
	defaultLanguage       = "es"
)

// #endregion defaults

// #region settings

// Settings is the full process configuration, loaded once at startup.
type Settings struct {
	Database DatabaseConfig `yaml:"database"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Chat     ChatConfig     `yaml:"chat"`
	STT      STTConfig      `yaml:"stt"`
}

// DatabaseConfig names the SQLite file backing memory and the run log.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PromptsConfig points at the versioned prompt template directory.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// ChatConfig holds the two completion backends and which one is default.
type ChatConfig struct {
	Primary   BackendConfig `yaml:"primary"`
	Secondary BackendConfig `yaml:"secondary"`
	Default   string        `yaml:"default"` // backend name; empty = primary
}

// BackendConfig describes one OpenAI-compatible chat backend.
// The API key is read from the environment variable named by APIKeyEnv,
// never from the settings file itself.
type BackendConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	Disabled  bool   `yaml:"disabled"`
}

// STTConfig describes the Whisper transcription service.
type STTConfig struct {
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
	Disabled bool   `yaml:"disabled"`
}

// #endregion settings

// #region config-error

// ConfigError is a fatal startup-time configuration failure.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

// #endregion config-error

// #region load

// Default returns settings with all defaults applied and no credentials.
func Default() Settings {
	return Settings{
		Database: DatabaseConfig{Path: defaultDBPath},
		Prompts:  PromptsConfig{Dir: defaultPromptsDir},
		Chat: ChatConfig{
			Primary: BackendConfig{
				Name:      "openai",
				BaseURL:   defaultPrimaryURL,
				Model:     defaultPrimaryModel,
				APIKeyEnv: "OPENAI_API_KEY",
			},
			Secondary: BackendConfig{
				Name:      "deepseek",
				BaseURL:   defaultSecondaryURL,
				Model:     defaultSecondaryModel,
				APIKeyEnv: "DEEPSEEK_API_KEY",
			},
		},
		STT: STTConfig{URL: defaultSTTURL, Language: defaultLanguage},
	}
}

// Load reads a YAML settings file and merges it over the defaults.
// A missing file is not an error; the defaults (plus env overrides) apply.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&s)
			return s, nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	fillDefaults(&s)
	applyEnv(&s)
	return s, nil
}

func fillDefaults(s *Settings) {
	if s.Database.Path == "" {
		s.Database.Path = defaultDBPath
	}
	if s.Prompts.Dir == "" {
		s.Prompts.Dir = defaultPromptsDir
	}
	if s.Chat.Primary.Name == "" {
		s.Chat.Primary.Name = "openai"
	}
	if s.Chat.Primary.BaseURL == "" {
		s.Chat.Primary.BaseURL = defaultPrimaryURL
	}
	if s.Chat.Primary.Model == "" {
		s.Chat.Primary.Model = defaultPrimaryModel
	}
	if s.Chat.Primary.APIKeyEnv == "" {
		s.Chat.Primary.APIKeyEnv = "OPENAI_API_KEY"
	}
	if s.Chat.Secondary.Name == "" {
		s.Chat.Secondary.Name = "deepseek"
	}
	if s.Chat.Secondary.BaseURL == "" {
		s.Chat.Secondary.BaseURL = defaultSecondaryURL
	}
	if s.Chat.Secondary.Model == "" {
		s.Chat.Secondary.Model = defaultSecondaryModel
	}
	if s.Chat.Secondary.APIKeyEnv == "" {
		s.Chat.Secondary.APIKeyEnv = "DEEPSEEK_API_KEY"
	}
	if s.STT.URL == "" {
		s.STT.URL = defaultSTTURL
	}
	if s.STT.Language == "" {
		s.STT.Language = defaultLanguage
	}
}

func applyEnv(s *Settings) {
	if v := os.Getenv("DOCTOR_DB"); v != "" {
		s.Database.Path = v
	}
	if v := os.Getenv("DOCTOR_PROMPTS"); v != "" {
		s.Prompts.Dir = v
	}
	if v := os.Getenv("DOCTOR_STT_URL"); v != "" {
		s.STT.URL = v
	}
}

// #endregion load

// #region validate

// Validate enforces startup invariants: every enabled chat backend must have
// its API key present in the environment. Returns a *ConfigError on the first
// violation so the process can refuse to start (or callers can disable the
// capability and log a warning).
func (s Settings) Validate() error {
	for _, b := range []BackendConfig{s.Chat.Primary, s.Chat.Secondary} {
		if b.Disabled {
			continue
		}
		if os.Getenv(b.APIKeyEnv) == "" {
			return &ConfigError{
				Field: "chat." + b.Name,
				Msg:   fmt.Sprintf("missing API key in env %s", b.APIKeyEnv),
			}
		}
	}
	return nil
}

// APIKey resolves a backend's key from the environment.
func (b BackendConfig) APIKey() string {
	return os.Getenv(b.APIKeyEnv)
}

// DefaultBackend returns the configured default chat backend.
func (c ChatConfig) DefaultBackend() BackendConfig {
	if c.Default != "" && c.Default == c.Secondary.Name {
		return c.Secondary
	}
	return c.Primary
}

// #endregion validate
