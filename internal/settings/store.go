// Package settings owns provider configuration and dashboard preferences.
// The store is an explicit dependency threaded through constructors; nothing
// reads it through a global.
package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gorm.io/gorm"

	"nexusai/internal/ai"
	"nexusai/pkg/models"
)

// DefaultNamespace keys dashboard preferences that are not provider specific.
const DefaultNamespace = "nexusai"

// ErrUnknownProvider is returned for configuration against a provider the
// router does not know.
var ErrUnknownProvider = errors.New("unknown provider")

// Store loads provider credentials and preferences at start, writes through on
// every change, and can reset to defaults.
type Store struct {
	db *gorm.DB

	mu        sync.RWMutex
	providers map[ai.Provider]*models.ProviderCredential
}

// NewStore loads existing configuration, seeding defaults for any provider not
// yet present. Environment variables pre-populate keys on first run only;
// values edited through the API win afterwards.
func NewStore(db *gorm.DB) (*Store, error) {
	s := &Store{
		db:        db,
		providers: make(map[ai.Provider]*models.ProviderCredential),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (s *Store) load() error {
	var rows []models.ProviderCredential
	if err := s.db.Find(&rows).Error; err != nil {
		return err
	}

	existing := make(map[ai.Provider]*models.ProviderCredential, len(rows))
	for i := range rows {
		existing[ai.Provider(rows[i].Provider)] = &rows[i]
	}

	for _, def := range defaultCredentials() {
		p := ai.Provider(def.Provider)
		if row, ok := existing[p]; ok {
			s.providers[p] = row
			continue
		}
		def := def
		if err := s.db.Create(&def).Error; err != nil {
			return err
		}
		s.providers[p] = &def
	}
	return nil
}

// defaultCredentials seeds the four known providers the way the dashboard
// ships them: env-vars as initial keys, stock base URLs and models.
func defaultCredentials() []models.ProviderCredential {
	return []models.ProviderCredential{
		{
			Provider:    string(ai.ProviderOpenAI),
			DisplayName: "OpenAI",
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4",
			Models:      "gpt-4,gpt-4-turbo,gpt-3.5-turbo",
			Enabled:     true,
		},
		{
			Provider:    string(ai.ProviderClaude),
			DisplayName: "Anthropic Claude",
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:     "https://api.anthropic.com/v1",
			Model:       "claude-3-sonnet-20240229",
			Models:      "claude-3-opus-20240229,claude-3-sonnet-20240229,claude-3-haiku-20240307",
			Enabled:     true,
		},
		{
			Provider:    string(ai.ProviderGrok),
			DisplayName: "xAI Grok",
			APIKey:      os.Getenv("GROK_API_KEY"),
			BaseURL:     "https://api.x.ai/v1",
			Model:       "grok-2-latest",
			Models:      "grok-2-latest,grok-beta",
			Enabled:     true,
		},
		{
			Provider:    string(ai.ProviderOllama),
			DisplayName: "Ollama (local)",
			BaseURL:     envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:       "llama2",
			Models:      "llama2,llama3,mistral,codellama",
			Enabled:     true,
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Provider returns a copy of one provider's configuration.
func (s *Store) Provider(p ai.Provider) (*models.ProviderCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	cp := *row
	return &cp, nil
}

// Providers returns copies of every provider configuration in stable order.
func (s *Store) Providers() []*models.ProviderCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ProviderCredential, 0, len(s.providers))
	for _, p := range ai.Providers() {
		if row, ok := s.providers[p]; ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out
}

// ConfigureUpdate carries the mutable fields of a provider configuration.
// Nil pointers leave the current value untouched.
type ConfigureUpdate struct {
	APIKey  *string
	BaseURL *string
	Model   *string
	Enabled *bool
}

// Configure mutates one provider's configuration and writes through.
func (s *Store) Configure(p ai.Provider, update ConfigureUpdate) (*models.ProviderCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}

	if update.APIKey != nil {
		row.APIKey = *update.APIKey
		// A new key invalidates the previous connectivity probe.
		row.Connected = false
	}
	if update.BaseURL != nil {
		row.BaseURL = *update.BaseURL
	}
	if update.Model != nil {
		row.Model = *update.Model
	}
	if update.Enabled != nil {
		row.Enabled = *update.Enabled
	}

	if err := s.db.Save(row).Error; err != nil {
		return nil, fmt.Errorf("save provider config: %w", err)
	}
	cp := *row
	return &cp, nil
}

// SetConnected records the outcome of a connectivity probe.
func (s *Store) SetConnected(p ai.Provider, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.providers[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	row.Connected = connected
	return s.db.Save(row).Error
}

// Preference reads one namespaced preference; empty string when unset.
func (s *Store) Preference(key string) (string, error) {
	var pref models.Preference
	err := s.db.Where("namespace = ? AND key = ?", DefaultNamespace, key).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pref.Value, nil
}

// SetPreference writes one namespaced preference.
func (s *Store) SetPreference(key, value string) error {
	pref := models.Preference{Namespace: DefaultNamespace, Key: key, Value: value}
	return s.db.
		Where("namespace = ? AND key = ?", DefaultNamespace, key).
		Assign(models.Preference{Value: value}).
		FirstOrCreate(&pref).Error
}

// Preferences returns every preference in the dashboard namespace.
func (s *Store) Preferences() (map[string]string, error) {
	var rows []models.Preference
	if err := s.db.Where("namespace = ?", DefaultNamespace).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Reset wipes credentials and preferences back to defaults. This backs the
// settings panel's explicit "reset everything" action.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Where("1 = 1").Delete(&models.ProviderCredential{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("namespace = ?", DefaultNamespace).Delete(&models.Preference{}).Error; err != nil {
		return err
	}

	s.providers = make(map[ai.Provider]*models.ProviderCredential)
	return s.load()
}

// BuildClients constructs provider adapters from the enabled configurations.
func (s *Store) BuildClients() []ai.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clients []ai.Client
	for _, p := range ai.Providers() {
		row, ok := s.providers[p]
		if !ok || !row.Enabled {
			continue
		}
		if c := buildClient(p, row); c != nil {
			clients = append(clients, c)
		}
	}
	return clients
}

// BuildClient constructs a single adapter from the stored configuration,
// ignoring the enabled flag so a disabled provider can still be probed.
func (s *Store) BuildClient(p ai.Provider) (ai.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.providers[p]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return buildClient(p, row), nil
}

func buildClient(p ai.Provider, row *models.ProviderCredential) ai.Client {
	switch p {
	case ai.ProviderOpenAI:
		return ai.NewOpenAIClient(row.APIKey, row.BaseURL, row.Model)
	case ai.ProviderClaude:
		return ai.NewClaudeClient(row.APIKey, row.BaseURL, row.Model)
	case ai.ProviderGrok:
		return ai.NewGrokClient(row.APIKey, row.BaseURL, row.Model)
	case ai.ProviderOllama:
		return ai.NewOllamaClient(row.BaseURL, row.Model)
	default:
		return nil
	}
}
