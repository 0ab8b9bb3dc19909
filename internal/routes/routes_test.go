package routes_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/database"
	"github.com/taskhub/backend/internal/handlers"
	"github.com/taskhub/backend/internal/routes"
	"github.com/taskhub/backend/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  30 * time.Minute,
		JWTRefreshExpiry: 168 * time.Hour,
	}

	authService := services.NewAuthService(db, cfg)
	taskService := services.NewTaskService(db)
	categoryService := services.NewCategoryService(db)

	app := fiber.New()
	routes.Setup(app, cfg,
		authService,
		handlers.NewAuthHandler(authService),
		handlers.NewHealthHandler(db),
		handlers.NewTaskHandler(taskService),
		handlers.NewCategoryHandler(categoryService, taskService),
	)
	return app, db
}

func request(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func registerAndLogin(t *testing.T, app *fiber.App, email string) string {
	t.Helper()

	creds := map[string]string{"email": email, "password": "password123"}
	resp, _ := request(t, app, http.MethodPost, "/api/auth/register", "", creds)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}

	resp, body := request(t, app, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("missing access token")
	}
	return token
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	app, _ := newTestApp(t)

	for _, path := range []string{"/api/tasks/", "/api/categories/"} {
		resp, _ := request(t, app, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s without token: status %d, want 401", path, resp.StatusCode)
		}
	}

	resp, _ := request(t, app, http.MethodPost, "/api/tasks/", "garbage-token", map[string]string{"title": "T"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", resp.StatusCode)
	}
}

func TestRegister_StorageFailureIsServerError(t *testing.T) {
	app, db := newTestApp(t)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	resp, body := request(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "u@example.com", "password": "password123",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("register against closed pool: status %d, want 500", resp.StatusCode)
	}
	if msg, _ := body["message"].(string); msg != "Internal server error" {
		t.Fatalf("storage failure must not leak its cause, got %q", msg)
	}
}

func TestRegister_Validation(t *testing.T) {
	app, _ := newTestApp(t)

	for _, body := range []map[string]string{
		{"email": "not-an-email", "password": "password123"},
		{"email": "u@example.com", "password": "short"},
	} {
		resp, _ := request(t, app, http.MethodPost, "/api/auth/register", "", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("register %v: status %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := request(t, app, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
	if body["db"] != "ok" {
		t.Fatalf("expected db ok, got %v", body["db"])
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := request(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "whatever1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login: status %d, want 401", resp.StatusCode)
	}
}

// The full lifecycle: register, login, category, task with embedded category,
// category delete nulling the reference.
func TestTaskLifecycle(t *testing.T) {
	app, _ := newTestApp(t)
	token := registerAndLogin(t, app, "u@example.com")

	// Duplicate registration is rejected.
	resp, _ := request(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "u@example.com", "password": "password123",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d, want 400", resp.StatusCode)
	}

	// Create a category; task_count must be absent from the response.
	resp, category := request(t, app, http.MethodPost, "/api/categories/", token, map[string]string{"name": "Work"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d", resp.StatusCode)
	}
	if _, present := category["task_count"]; present {
		t.Fatal("task_count must be absent unless requested")
	}
	categoryID, _ := category["id"].(string)

	// Create a task attached to it; response embeds the category name.
	resp, task := request(t, app, http.MethodPost, "/api/tasks/", token, map[string]interface{}{
		"title": "T", "category_id": categoryID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	taskID, _ := task["id"].(string)
	embedded, _ := task["category"].(map[string]interface{})
	if embedded == nil || embedded["name"] != "Work" {
		t.Fatalf("expected embedded category Work, got %v", task["category"])
	}

	// Missing title is a validation error.
	resp, _ = request(t, app, http.MethodPost, "/api/tasks/", token, map[string]string{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("create task without title: status %d, want 422", resp.StatusCode)
	}

	// Delete the category; referencing task survives with a nulled reference.
	resp, _ = request(t, app, http.MethodDelete, "/api/categories/"+categoryID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete category: status %d, want 204", resp.StatusCode)
	}

	resp, task = request(t, app, http.MethodGet, "/api/tasks/"+taskID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-fetch task: status %d", resp.StatusCode)
	}
	if task["category_id"] != nil {
		t.Fatalf("category_id must be null, got %v", task["category_id"])
	}
	if task["category"] != nil {
		t.Fatalf("category must be null, got %v", task["category"])
	}
}

func TestCrossUserAccessIndistinguishable(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerAndLogin(t, app, "alice@example.com")
	bob := registerAndLogin(t, app, "bob@example.com")

	resp, task := request(t, app, http.MethodPost, "/api/tasks/", alice, map[string]string{"title": "secret"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	taskID, _ := task["id"].(string)

	realResp, realBody := request(t, app, http.MethodGet, "/api/tasks/"+taskID, bob, nil)
	fakeResp, fakeBody := request(t, app, http.MethodGet, "/api/tasks/00000000-0000-0000-0000-000000000001", bob, nil)

	if realResp.StatusCode != http.StatusNotFound || fakeResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404/404, got %d/%d", realResp.StatusCode, fakeResp.StatusCode)
	}
	if fmt.Sprint(realBody) != fmt.Sprint(fakeBody) {
		t.Fatalf("responses must be identical in shape: %v vs %v", realBody, fakeBody)
	}

	// Bob cannot attach his task to Alice's category either.
	resp, category := request(t, app, http.MethodPost, "/api/categories/", alice, map[string]string{"name": "Private"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d", resp.StatusCode)
	}
	resp, _ = request(t, app, http.MethodPost, "/api/tasks/", bob, map[string]interface{}{
		"title": "sneaky", "category_id": category["id"],
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("cross-owner category reference: status %d, want 400", resp.StatusCode)
	}
}

func TestTaskFiltersOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	token := registerAndLogin(t, app, "u@example.com")

	resp, category := request(t, app, http.MethodPost, "/api/categories/", token, map[string]string{"name": "X"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d", resp.StatusCode)
	}
	categoryID, _ := category["id"].(string)

	for _, body := range []map[string]interface{}{
		{"title": "in-x", "category_id": categoryID},
		{"title": "loose"},
	} {
		if resp, _ := request(t, app, http.MethodPost, "/api/tasks/", token, body); resp.StatusCode != http.StatusCreated {
			t.Fatalf("create task: status %d", resp.StatusCode)
		}
	}

	resp, list := request(t, app, http.MethodGet, "/api/tasks/?category_id="+categoryID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("filtered list: status %d", resp.StatusCode)
	}
	if total, _ := list["total"].(float64); total != 1 {
		t.Fatalf("category filter: expected total 1, got %v", list["total"])
	}

	resp, _ = request(t, app, http.MethodGet, "/api/tasks/?is_completed=maybe", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad filter value: status %d, want 400", resp.StatusCode)
	}
}

func TestCategoryTaskCountOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	token := registerAndLogin(t, app, "u@example.com")

	resp, category := request(t, app, http.MethodPost, "/api/categories/", token, map[string]string{"name": "Work"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d", resp.StatusCode)
	}
	categoryID, _ := category["id"].(string)

	if resp, _ := request(t, app, http.MethodPost, "/api/tasks/", token, map[string]interface{}{
		"title": "T", "category_id": categoryID,
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}

	resp, list := request(t, app, http.MethodGet, "/api/categories/?with_task_count=true", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	categories, _ := list["categories"].([]interface{})
	if len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}
	first, _ := categories[0].(map[string]interface{})
	if count, _ := first["task_count"].(float64); count != 1 {
		t.Fatalf("expected task_count 1, got %v", first["task_count"])
	}

	// /categories/:id/tasks lists the tasks underneath.
	resp, tasks := request(t, app, http.MethodGet, "/api/categories/"+categoryID+"/tasks", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("category tasks: status %d", resp.StatusCode)
	}
	if total, _ := tasks["total"].(float64); total != 1 {
		t.Fatalf("expected total 1, got %v", tasks["total"])
	}
}

func TestPatchClearsCategoryWithExplicitNull(t *testing.T) {
	app, _ := newTestApp(t)
	token := registerAndLogin(t, app, "u@example.com")

	resp, category := request(t, app, http.MethodPost, "/api/categories/", token, map[string]string{"name": "Work"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d", resp.StatusCode)
	}
	resp, task := request(t, app, http.MethodPost, "/api/tasks/", token, map[string]interface{}{
		"title":       "T",
		"category_id": category["id"],
		"description": "notes",
		"due_date":    time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	taskID, _ := task["id"].(string)

	// PATCH without the keys leaves everything alone.
	resp, task = request(t, app, http.MethodPatch, "/api/tasks/"+taskID, token, map[string]interface{}{"title": "renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status %d", resp.StatusCode)
	}
	if task["category_id"] == nil || task["description"] == nil || task["due_date"] == nil {
		t.Fatal("absent keys must not clear fields")
	}

	// An explicit null clears each nullable field.
	resp, task = request(t, app, http.MethodPatch, "/api/tasks/"+taskID, token, map[string]interface{}{
		"category_id": nil, "description": nil, "due_date": nil,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch null: status %d", resp.StatusCode)
	}
	if task["category_id"] != nil {
		t.Fatalf("explicit null must clear the category, got %v", task["category_id"])
	}
	if task["description"] != nil || task["due_date"] != nil {
		t.Fatalf("explicit null must clear description and due date, got %v / %v", task["description"], task["due_date"])
	}
}
