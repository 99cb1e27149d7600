package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/goalforge/internal/auth"
	authdomain "github.com/smallbiznis/goalforge/internal/auth/domain"
	"github.com/smallbiznis/goalforge/internal/challenge"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/smallbiznis/goalforge/internal/habit"
	"github.com/smallbiznis/goalforge/internal/migration"
	"github.com/smallbiznis/goalforge/internal/observability"
	"github.com/smallbiznis/goalforge/internal/progress"
	"github.com/smallbiznis/goalforge/internal/providers/notification"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"github.com/smallbiznis/goalforge/internal/scheduler"
	"github.com/smallbiznis/goalforge/internal/server"
	"github.com/smallbiznis/goalforge/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	issuer    authdomain.Issuer
	scheduler *scheduler.Scheduler
	baseURL   string
	httpSrv   *httptest.Server
	dataDir   string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dataDir, err := os.MkdirTemp("", "goalforge-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create data dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(dataDir)

	env, err = startEnv(dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dataDir)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_RejectsAnonymousRequests(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, "/api/habits", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.StatusCode)
	}
}

func TestE2E_HabitCompletionFlow(t *testing.T) {
	resetDatabase(t, env.db)
	token := issueToken(t, "e2e-runner")

	resp, body := doJSON(t, http.MethodPost, "/api/habits", token, map[string]any{
		"title":    "Read 20 pages",
		"category": "learning",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create habit: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, body, &created)
	if created.ID == "" {
		t.Fatalf("create habit: missing id in %s", body)
	}

	resp, body = doJSON(t, http.MethodPost, "/api/habits/"+created.ID+"/complete", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete habit: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var result struct {
		Success         bool   `json:"success"`
		HabitID         string `json:"habit_id"`
		NewStreakLength int    `json:"new_streak_length"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if !result.Success || result.HabitID != created.ID || result.NewStreakLength != 1 {
		t.Fatalf("unexpected completion result: %s", body)
	}

	resp, body = doJSON(t, http.MethodPost, "/api/habits/"+created.ID+"/complete", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second completion: expected 400, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "already_recorded_today") {
		t.Fatalf("second completion: unexpected body %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/streaks", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get streak: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var streak struct {
		Current        int  `json:"current"`
		CompletedToday bool `json:"completed_today"`
	}
	decodeData(t, body, &streak)
	if streak.Current != 1 || !streak.CompletedToday {
		t.Fatalf("unexpected streak: %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, "/api/progress", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get progress: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var progress struct {
		XP int64 `json:"xp"`
	}
	decodeData(t, body, &progress)
	if progress.XP <= 0 {
		t.Fatalf("expected xp after completion, got %s", body)
	}
}

func TestE2E_ForeignHabitIsForbidden(t *testing.T) {
	resetDatabase(t, env.db)
	owner := issueToken(t, "owner")
	other := issueToken(t, "intruder")

	resp, body := doJSON(t, http.MethodPost, "/api/habits", owner, map[string]any{"title": "Stretch"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create habit: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, body, &created)

	resp, body = doJSON(t, http.MethodPost, "/api/habits/"+created.ID+"/complete", other, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.StatusCode, body)
	}
}

func TestE2E_SchedulerRunsAgainstWiredGraph(t *testing.T) {
	resetDatabase(t, env.db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}
}

func startEnv(dataDir string) (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		issuer      authdomain.Issuer
		schedulerSv *scheduler.Scheduler
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,
		auth.Module,
		ratelimit.Module,
		notification.Module,
		realtime.Module,
		habit.Module,
		progress.Module,
		challenge.Module,
		scheduler.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.SnowflakeNode)
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &issuer, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		db:        dbConn,
		issuer:    issuer,
		scheduler: schedulerSv,
		baseURL:   httpSrv.URL,
		httpSrv:   httpSrv,
		dataDir:   dataDir,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
}

func setDefaultEnv(dataDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("AUTH_JWT_SECRET", "e2e-secret")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", filepath.Join(dataDir, "goalforge"))
	setEnvIfEmpty("RATE_LIMIT_ENABLED", "false")
	setEnvIfEmpty("SCHEDULER_ENABLED", "false")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

var userTables = []string{
	"challenge_messages",
	"challenge_participants",
	"challenges",
	"achievements",
	"user_progress",
	"streak_snapshots",
	"completion_events",
	"habits",
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range userTables {
		if !dbConn.Migrator().HasTable(table) {
			continue
		}
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func issueToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := env.issuer.Issue(userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func decodeData(t *testing.T, body []byte, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, body)
	}
}
