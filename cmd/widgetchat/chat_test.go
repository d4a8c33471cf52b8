package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-widget-chat/internal/cache"
	"github.com/tbourn/go-widget-chat/internal/config"
	httpapi "github.com/tbourn/go-widget-chat/internal/http"
	"github.com/tbourn/go-widget-chat/internal/provider"
	"github.com/tbourn/go-widget-chat/internal/provider/providertest"
	"github.com/tbourn/go-widget-chat/internal/repo"
	"github.com/tbourn/go-widget-chat/internal/widgetclient"
)

// TestRunChat drives the terminal client against the real router.
func TestRunChat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { closeDB(db) })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fx, _ := readFixtures(strings.NewReader(sampleFixtures))
	ids, err := applyFixtures(context.Background(), db, fx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Providers: &provider.Selector{OpenAI: providertest.New("Abrimos", " de 9 a 18.")},
		Cache:     cache.NewMemory(8, time.Minute),
	}, config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		Chat:           config.ChatConfig{MaxMessageRunes: 4000, PersistTimeout: time.Second},
		Providers:      config.ProviderConfig{Timeout: 5 * time.Second},
		IdempotencyTTL: time.Hour,
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	in := strings.NewReader("¿Horario?\n/rate 5 Gracias\n/rate x\n/history\n/quit\n")
	var out bytes.Buffer

	c := widgetclient.New(srv.URL+"/api/v1", ids[0])
	if err := runChat(cmd, c, "visitor-1", in, &out); err != nil {
		t.Fatalf("runChat: %v\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"Soporte (session visitor-1)",
		"< ¡Hola! ¿En qué puedo ayudarte?",
		"< Abrimos de 9 a 18.",
		"rated 5/5",
		"usage: /rate",
		"[user] ¿Horario?",
		"[assistant] Abrimos de 9 a 18.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestRunChat_ConfigFailure(t *testing.T) {
	srv := httptest.NewServer(gin.New())
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	err := runChat(cmd, widgetclient.New(srv.URL, "missing"), "s", strings.NewReader(""), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected config lookup to fail")
	}
}
