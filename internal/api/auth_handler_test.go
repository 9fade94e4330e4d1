package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumatch/internal/api/middleware"
	"resumatch/internal/auth"
	"resumatch/internal/database"
	"resumatch/internal/resume"
	"resumatch/internal/user"
)

type testEnv struct {
	router      *gin.Engine
	db          *gorm.DB
	authService *auth.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	authService, err := auth.NewAuthService([]byte("test-secret"), 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	// 不可达的 Redis：限流与锁定按放行处理
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})

	userService := user.NewService(db, authService, nil)
	resumeService := resume.NewService(db, nil)

	authHandler := NewAuthHandler(userService, authService, redisClient, nil, 10, 5, time.Minute)
	resumeHandler := NewResumeHandler(resumeService, nil, nil, nil, "", 0)
	authMiddleware := middleware.AuthMiddleware(authService)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)
	v1.GET("/profile", authMiddleware, authHandler.GetProfile)

	resumeGroup := v1.Group("/resumes")
	resumeGroup.Use(authMiddleware)
	resumeGroup.POST("", resumeHandler.CreateResume)
	resumeGroup.GET("/:id", resumeHandler.GetResume)
	resumeGroup.PATCH("/:id", resumeHandler.UpdateResume)

	return &testEnv{router: router, db: db, authService: authService}
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/register", "", gin.H{
		"name":     "Test User",
		"email":    email,
		"password": "password-123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    email,
		"password": "password-123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected access token in response")
	}
	return resp.AccessToken
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/v1/auth/register", "", gin.H{
		"name":     "Alice Again",
		"email":    "Alice@Example.com",
		"password": "password-456",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestProfile_RequiresAccessToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice@example.com")

	if w := env.do(t, http.MethodGet, "/v1/profile", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/v1/profile", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp profileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if resp.Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", resp.Email)
	}
}

func TestResumeOwnership_AcrossUsers(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.registerAndLogin(t, "alice@example.com")
	bobToken := env.registerAndLogin(t, "bob@example.com")

	w := env.do(t, http.MethodPost, "/v1/resumes", aliceToken, gin.H{"title": "Alice Resume"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create resume: expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	var created resumeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode resume: %v", err)
	}

	if w := env.do(t, http.MethodGet, "/v1/resumes/"+created.ResumeID, aliceToken, nil); w.Code != http.StatusOK {
		t.Fatalf("owner read: expected 200 got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v1/resumes/"+created.ResumeID, bobToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign read: expected 403 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateResume_ReturnsNewVersion(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/v1/resumes", token, gin.H{"title": "First"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d", w.Code)
	}
	var created resumeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = env.do(t, http.MethodPatch, "/v1/resumes/"+created.ResumeID, token, gin.H{"title": "Second"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var updated resumeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if updated.ResumeID == created.ResumeID {
		t.Fatal("update must return a new version row")
	}
	if updated.VersionNumber != 2 || updated.Version != "v2.0" {
		t.Fatalf("unexpected version %d %q", updated.VersionNumber, updated.Version)
	}
	if updated.ResumeGroupID != created.ResumeGroupID {
		t.Fatal("version chain must share the group id")
	}

	w = env.do(t, http.MethodPatch, "/v1/resumes/"+created.ResumeID, token, gin.H{"status": "published"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: expected 400 got %d", w.Code)
	}
}
