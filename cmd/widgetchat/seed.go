package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/cache"
	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/repo"
	"github.com/tbourn/go-widget-chat/internal/services"
)

// fixtures is the seed file format: chatbots with their knowledge items.
type fixtures struct {
	Chatbots []chatbotFixture `json:"chatbots"`
}

type chatbotFixture struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	Name           string             `json:"name"`
	PrimaryColor   string             `json:"primaryColor"`
	TextColor      string             `json:"textColor"`
	Position       string             `json:"position"`
	WelcomeMessage string             `json:"welcomeMessage"`
	Placeholder    string             `json:"placeholder"`
	AvatarURL      *string            `json:"avatarUrl"`
	SystemPrompt   string             `json:"systemPrompt"`
	AIProvider     string             `json:"aiProvider"`
	AIModel        string             `json:"aiModel"`
	CustomEndpoint *string            `json:"customEndpoint"`
	CustomAPIKey   *string            `json:"customApiKey"`
	CustomModel    *string            `json:"customModel"`
	Temperature    *float64           `json:"temperature"`
	MaxTokens      int                `json:"maxTokens"`
	IsActive       *bool              `json:"isActive"`
	Knowledge      []knowledgeFixture `json:"knowledge"`
}

type knowledgeFixture struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	SourceType string  `json:"sourceType"`
	SourceURL  *string `json:"sourceUrl"`
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load chatbots and knowledge items from a JSON file",
		Long: "Upserts every chatbot in the file and replaces its knowledge items.\n" +
			"Chatbots not named in the file are left untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			fx, err := readFixtures(f)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			db, err := repo.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}

			ids, err := applyFixtures(cmd.Context(), db, fx)
			if err != nil {
				return err
			}

			if cfg.Redis.Addr != "" {
				store, closeCache := newCacheStore(cmd.Context(), cfg)
				defer closeCache()
				ws := &services.WidgetService{Cache: cache.NewLoader(store, cfg.WidgetCacheTTL)}
				for _, id := range ids {
					if err := ws.Invalidate(cmd.Context(), id); err != nil {
						log.Warn().Err(err).Str("chatbot_id", id).Msg("widget cache invalidation failed")
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the fixtures JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readFixtures(r io.Reader) (*fixtures, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var fx fixtures
	if err := dec.Decode(&fx); err != nil {
		return nil, err
	}
	if len(fx.Chatbots) == 0 {
		return nil, errors.New("no chatbots in file")
	}
	for i := range fx.Chatbots {
		if err := fx.Chatbots[i].validate(); err != nil {
			return nil, fmt.Errorf("chatbot %d: %w", i, err)
		}
	}
	return &fx, nil
}

func (c *chatbotFixture) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	switch c.AIProvider {
	case "":
		c.AIProvider = domain.ProviderOpenAI
	case domain.ProviderOpenAI, domain.ProviderGemini:
	case domain.ProviderCustom:
		if c.CustomEndpoint == nil || strings.TrimSpace(*c.CustomEndpoint) == "" {
			return errors.New("customEndpoint is required for custom chatbots")
		}
	default:
		return fmt.Errorf("unknown aiProvider %q", c.AIProvider)
	}
	if strings.TrimSpace(c.AIModel) == "" {
		return errors.New("aiModel is required")
	}
	switch c.Position {
	case "":
		c.Position = "bottom-right"
	case "bottom-right", "bottom-left":
	default:
		return fmt.Errorf("position %q must be bottom-right or bottom-left", c.Position)
	}
	for j, k := range c.Knowledge {
		if strings.TrimSpace(k.Title) == "" || strings.TrimSpace(k.Content) == "" {
			return fmt.Errorf("knowledge %d: title and content are required", j)
		}
	}
	return nil
}

func (c *chatbotFixture) model() *domain.Chatbot {
	cb := &domain.Chatbot{
		ID:             c.ID,
		UserID:         c.UserID,
		Name:           c.Name,
		PrimaryColor:   c.PrimaryColor,
		TextColor:      c.TextColor,
		Position:       c.Position,
		WelcomeMessage: c.WelcomeMessage,
		Placeholder:    c.Placeholder,
		AvatarURL:      c.AvatarURL,
		SystemPrompt:   c.SystemPrompt,
		AIProvider:     c.AIProvider,
		AIModel:        c.AIModel,
		CustomEndpoint: c.CustomEndpoint,
		CustomAPIKey:   c.CustomAPIKey,
		CustomModel:    c.CustomModel,
		Temperature:    0.7,
		MaxTokens:      c.MaxTokens,
		IsActive:       true,
	}
	if cb.UserID == "" {
		cb.UserID = "seed"
	}
	if cb.PrimaryColor == "" {
		cb.PrimaryColor = "#2563eb"
	}
	if cb.TextColor == "" {
		cb.TextColor = "#ffffff"
	}
	if c.Temperature != nil {
		cb.Temperature = *c.Temperature
	}
	if cb.MaxTokens <= 0 {
		cb.MaxTokens = 1024
	}
	if c.IsActive != nil {
		cb.IsActive = *c.IsActive
	}
	return cb
}

// applyFixtures writes fx in one transaction and returns the chatbot IDs.
func applyFixtures(ctx context.Context, db *gorm.DB, fx *fixtures) ([]string, error) {
	ids := make([]string, 0, len(fx.Chatbots))
	err := db.Transaction(func(tx *gorm.DB) error {
		for i := range fx.Chatbots {
			c := &fx.Chatbots[i]
			cb := c.model()
			if err := repo.UpsertChatbot(ctx, tx, cb); err != nil {
				return fmt.Errorf("upsert chatbot %q: %w", cb.Name, err)
			}
			if _, err := repo.DeleteKnowledgeItems(ctx, tx, cb.ID); err != nil {
				return fmt.Errorf("clear knowledge of %s: %w", cb.ID, err)
			}
			for _, k := range c.Knowledge {
				it := &domain.KnowledgeItem{Title: k.Title, Content: k.Content, SourceType: k.SourceType, SourceURL: k.SourceURL}
				if err := repo.CreateKnowledgeItem(ctx, tx, cb.ID, it); err != nil {
					return fmt.Errorf("knowledge %q of %s: %w", k.Title, cb.ID, err)
				}
			}
			log.Info().
				Str("chatbot_id", cb.ID).
				Str("provider", cb.AIProvider).
				Int("knowledge_items", len(c.Knowledge)).
				Msg("seeded chatbot")
			ids = append(ids, cb.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
