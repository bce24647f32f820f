package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelkhatib/anatomica/common/environment"
	"github.com/aelkhatib/anatomica/common/version"
	"github.com/aelkhatib/anatomica/internal/anatomica/app"
	"github.com/aelkhatib/anatomica/internal/anatomica/gen"
	"github.com/aelkhatib/anatomica/internal/anatomica/telegram"
)

func main() {
	fmt.Printf("Anatomica\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	// Load configuration from environment
	config, apiKey, model, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	generator, err := gen.NewGemini(ctx, gen.Config{APIKey: apiKey, Model: model})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create generation client: %v\n", err)
		os.Exit(1)
	}
	config.Generator = generator

	// Create application
	anatomica, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Anatomica: %v\n", err)
		os.Exit(1)
	}
	defer anatomica.Stop()

	// Run application
	if err := anatomica.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Anatomica: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() (*app.Config, string, string, error) {
	botToken, err := environment.RequiredString("BOT_TOKEN")
	if err != nil {
		return nil, "", "", err
	}
	apiKey, err := environment.RequiredString("GOOGLE_API_KEY")
	if err != nil {
		return nil, "", "", err
	}
	ownerChatID, err := environment.RequiredInt64("OWNER_CHAT_ID")
	if err != nil {
		return nil, "", "", err
	}

	config := &app.Config{
		Telegram: telegram.Config{
			BaseURL:     environment.StringOr("TELEGRAM_API_BASE", ""),
			Token:       botToken,
			PollTimeout: environment.DurationOr("POLL_TIMEOUT", 0),
		},
		OwnerChatID:     ownerChatID,
		BroadcastPrefix: environment.StringOr("BROADCAST_PREFIX", "Nouvelle mise à jour"),
		TaxonomyPath:    environment.StringOr("TAXONOMY_PATH", "./anatomie.yaml"),
		DatabasePath:    environment.StringOr("DATABASE_PATH", "./anatomica.db"),
		Disclaimer:      environment.StringOr("DISCLAIMER", ""),
		HTTPAddr:        environment.StringOr("HTTP_ADDR", ":3000"),
		StaticDir:       environment.StringOr("STATIC_DIR", "./web"),
	}
	model := environment.StringOr("GEMINI_MODEL", "")
	return config, apiKey, model, nil
}
