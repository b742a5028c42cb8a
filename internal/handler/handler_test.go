package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/archivebroni/internal/accounts"
	"github.com/jmerrifield20/archivebroni/internal/handler"
	"github.com/jmerrifield20/archivebroni/internal/identity"
	"github.com/jmerrifield20/archivebroni/internal/profiles"
	"github.com/jmerrifield20/archivebroni/internal/users"
	"go.uber.org/zap"
)

// ── Stub account service ──────────────────────────────────────────────────

type stubAccounts struct {
	register  accounts.RegisterResult
	login     accounts.LoginResult
	profile   accounts.ProfileResult
	favorites accounts.FavoritesResult
	public    accounts.PublicResult

	gotToken  string
	gotItem   [2]string
	gotUpload accounts.Upload
	uploaded  string
}

func ok() accounts.Result { return accounts.Result{Success: true} }

func fail(kind profiles.Kind) accounts.Result {
	return accounts.Result{Error: &accounts.Failure{Kind: kind, Message: string(kind)}}
}

func (s *stubAccounts) Register(context.Context, string, string, string) accounts.RegisterResult {
	return s.register
}

func (s *stubAccounts) Login(context.Context, string, string) accounts.LoginResult { return s.login }

func (s *stubAccounts) Logout(_ context.Context, token string) accounts.Result {
	if token == "" {
		return fail(profiles.KindUnauthenticated)
	}
	return ok()
}

func (s *stubAccounts) EnsureProfile(_ context.Context, token string) accounts.ProfileResult {
	s.gotToken = token
	return s.profile
}

func (s *stubAccounts) UpdateProfile(_ context.Context, token string, _ accounts.ProfileUpdate) accounts.ProfileResult {
	s.gotToken = token
	return s.profile
}

func (s *stubAccounts) UpdatePrivacy(context.Context, string, profiles.PrivacySettings) accounts.ProfileResult {
	return s.profile
}

func (s *stubAccounts) UploadAvatar(_ context.Context, _ string, up accounts.Upload) accounts.ProfileResult {
	s.gotUpload = up
	b, _ := io.ReadAll(up.Body)
	s.uploaded = string(b)
	return s.profile
}

func (s *stubAccounts) AddFavorite(context.Context, string, profiles.Favorite) accounts.FavoritesResult {
	return s.favorites
}

func (s *stubAccounts) RemoveFavorite(_ context.Context, _, itemID, itemType string) accounts.FavoritesResult {
	s.gotItem = [2]string{itemID, itemType}
	return s.favorites
}

func (s *stubAccounts) ChangePassword(_ context.Context, _, current, _, _ string) accounts.Result {
	if current == "" {
		return fail(profiles.KindValidation)
	}
	return ok()
}

func (s *stubAccounts) DeleteAccount(context.Context, string) accounts.DeleteResult {
	return accounts.DeleteResult{Result: ok(), ProfileDeleted: true}
}

func (s *stubAccounts) ExportData(context.Context, string) accounts.ExportResult {
	return accounts.ExportResult{Result: ok(), Export: &accounts.Export{
		Profile:    &profiles.Profile{ID: "id-1", Username: "u1"},
		Auth:       accounts.ExportAuth{Email: "u1@x.com"},
		ExportDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	}}
}

func (s *stubAccounts) PublicProfile(context.Context, string) accounts.PublicResult { return s.public }

// ── Stub session resolver ─────────────────────────────────────────────────

type stubSessions struct{ err error }

func (s *stubSessions) Current(_ context.Context, token string) (*users.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != "good" {
		return nil, fmt.Errorf("%w: bad token", identity.ErrUnauthenticated)
	}
	return &users.Identity{ID: "id-1", Email: "u1@x.com"}, nil
}

// ── Test setup ────────────────────────────────────────────────────────────

func setupRouter(t *testing.T, svc *stubAccounts, sessions *stubSessions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(svc, zap.NewNop()).Register(v1)
	handler.NewProfileHandler(svc, sessions, zap.NewNop()).Register(v1)
	return r
}

func do(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return resp
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestRegister_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		res    accounts.RegisterResult
		status int
	}{
		{"created", accounts.RegisterResult{Result: ok(), IdentityID: "id-1", ProfileCreated: true}, http.StatusCreated},
		{"partial", accounts.RegisterResult{Result: accounts.Result{Success: true, Warning: "later"}, IdentityID: "id-1"}, http.StatusCreated},
		{"validation", accounts.RegisterResult{Result: fail(profiles.KindValidation)}, http.StatusBadRequest},
		{"provider rejected", accounts.RegisterResult{Result: fail(profiles.KindIdentityCreation)}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, &stubAccounts{register: tt.res}, &stubSessions{})
			w := do(r, http.MethodPost, "/api/v1/auth/register", `{"email":"u1@x.com","password":"secret12","username":"u1"}`, "")
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestRegister_PartialSuccessCarriesWarning(t *testing.T) {
	svc := &stubAccounts{register: accounts.RegisterResult{
		Result:     accounts.Result{Success: true, Warning: "profile setup did not complete"},
		IdentityID: "id-1",
	}}
	r := setupRouter(t, svc, &stubSessions{})
	w := do(r, http.MethodPost, "/api/v1/auth/register", `{"email":"u1@x.com","password":"secret12","username":"u1"}`, "")

	resp := decode(t, w)
	if resp["success"] != true || resp["profile_created"] != false {
		t.Errorf("unexpected body: %v", resp)
	}
	if resp["warning"] == nil {
		t.Error("expected warning in response")
	}
}

func TestRegister_400_badJSON(t *testing.T) {
	r := setupRouter(t, &stubAccounts{}, &stubSessions{})
	w := do(r, http.MethodPost, "/api/v1/auth/register", `{not json`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp["success"] != false {
		t.Errorf("expected success=false, got %v", resp["success"])
	}
}

func TestLogin_401_badCredentials(t *testing.T) {
	r := setupRouter(t, &stubAccounts{login: accounts.LoginResult{Result: fail(profiles.KindInvalidCredential)}}, &stubSessions{})
	w := do(r, http.MethodPost, "/api/v1/auth/login", `{"email":"u1@x.com","password":"wrong"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogout(t *testing.T) {
	r := setupRouter(t, &stubAccounts{}, &stubSessions{})
	if w := do(r, http.MethodPost, "/api/v1/auth/logout", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("without token: expected 401, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/auth/logout", "", "good"); w.Code != http.StatusOK {
		t.Errorf("with token: expected 200, got %d", w.Code)
	}
}

func TestProfileMe_RequiresSession(t *testing.T) {
	svc := &stubAccounts{profile: accounts.ProfileResult{Result: ok(), Profile: &profiles.Profile{ID: "id-1"}}}

	r := setupRouter(t, svc, &stubSessions{})
	if w := do(r, http.MethodGet, "/api/v1/profile/me", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/profile/me", "", "revoked"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", w.Code)
	}

	w := do(r, http.MethodGet, "/api/v1/profile/me", "", "good")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotToken != "good" {
		t.Errorf("service got token %q", svc.gotToken)
	}

	down := setupRouter(t, svc, &stubSessions{err: errors.New("redis down")})
	if w := do(down, http.MethodGet, "/api/v1/profile/me", "", "good"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("backend failure: expected 503, got %d", w.Code)
	}
}

func TestUpdateProfile_StatusMapping(t *testing.T) {
	tests := []struct {
		kind   profiles.Kind
		status int
	}{
		{profiles.KindValidation, http.StatusBadRequest},
		{profiles.KindProfileNotFound, http.StatusNotFound},
		{profiles.KindProfileConflict, http.StatusConflict},
		{profiles.KindProfileAccess, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			r := setupRouter(t, &stubAccounts{profile: accounts.ProfileResult{Result: fail(tt.kind)}}, &stubSessions{})
			w := do(r, http.MethodPatch, "/api/v1/profile/me", `{"bio":"hi"}`, "good")
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestFavorites(t *testing.T) {
	svc := &stubAccounts{favorites: accounts.FavoritesResult{Result: ok(), Changed: true}}
	r := setupRouter(t, svc, &stubSessions{})

	if w := do(r, http.MethodPost, "/api/v1/profile/me/favorites", `{"id":"item-1","type":"record"}`, "good"); w.Code != http.StatusCreated {
		t.Errorf("new favorite: expected 201, got %d", w.Code)
	}
	svc.favorites.Changed = false
	if w := do(r, http.MethodPost, "/api/v1/profile/me/favorites", `{"id":"item-1","type":"record"}`, "good"); w.Code != http.StatusOK {
		t.Errorf("existing favorite: expected 200, got %d", w.Code)
	}

	if w := do(r, http.MethodDelete, "/api/v1/profile/me/favorites/record/item-1", "", "good"); w.Code != http.StatusOK {
		t.Errorf("remove: expected 200, got %d", w.Code)
	}
	if svc.gotItem != [2]string{"item-1", "record"} {
		t.Errorf("remove passed %v", svc.gotItem)
	}
}

func TestChangePassword(t *testing.T) {
	r := setupRouter(t, &stubAccounts{}, &stubSessions{})
	if w := do(r, http.MethodPost, "/api/v1/profile/me/password", `{"new_password":"x"}`, "good"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	body := `{"current_password":"a","new_password":"newsecret1","confirm_password":"newsecret1"}`
	if w := do(r, http.MethodPost, "/api/v1/profile/me/password", body, "good"); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	r := setupRouter(t, &stubAccounts{}, &stubSessions{})
	w := do(r, http.MethodDelete, "/api/v1/profile/me", "", "good")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["profile_deleted"] != true {
		t.Errorf("unexpected body: %v", resp)
	}
}

func TestExport_Attachment(t *testing.T) {
	r := setupRouter(t, &stubAccounts{}, &stubSessions{})
	w := do(r, http.MethodGet, "/api/v1/profile/me/export", "", "good")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "archive-data-2026-03-04.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	resp := decode(t, w)
	if resp["export_date"] == nil || resp["auth"] == nil || resp["profile"] == nil {
		t.Errorf("unexpected export body: %v", resp)
	}
}

func TestPublicProfile_404(t *testing.T) {
	r := setupRouter(t, &stubAccounts{public: accounts.PublicResult{Result: fail(profiles.KindProfileNotFound)}}, &stubSessions{})
	if w := do(r, http.MethodGet, "/api/v1/users/u1", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUploadAvatar_Multipart(t *testing.T) {
	svc := &stubAccounts{profile: accounts.ProfileResult{Result: ok()}}
	r := setupRouter(t, svc, &stubSessions{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("pngdata"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotUpload.Filename != "me.png" || svc.gotUpload.ContentType != "image/png" || svc.gotUpload.Size != 7 {
		t.Errorf("unexpected upload: %+v", svc.gotUpload)
	}
	if svc.uploaded != "pngdata" {
		t.Errorf("uploaded %q", svc.uploaded)
	}

	if w := do(r, http.MethodPost, "/api/v1/profile/me/avatar", "", "good"); w.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", w.Code)
	}
}

type stubReadiness struct{ serving bool }

func (s stubReadiness) Statuses() map[string]string {
	if s.serving {
		return map[string]string{"postgres": "healthy"}
	}
	return map[string]string{"postgres": "degraded"}
}

func (s stubReadiness) Serving() bool { return s.serving }

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, serving := range []bool{true, false} {
		r := gin.New()
		handler.RegisterHealth(r, stubReadiness{serving: serving})
		w := do(r, http.MethodGet, "/readyz", "", "")
		want := http.StatusOK
		if !serving {
			want = http.StatusServiceUnavailable
		}
		if w.Code != want {
			t.Errorf("serving=%v: expected %d, got %d", serving, want, w.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = do(r, http.MethodGet, "/ping", "", "")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last.Code)
	}
	errBody, _ := decode(t, last)["error"].(map[string]any)
	if errBody["kind"] != handler.KindRateLimited {
		t.Errorf("kind = %v, want %s", errBody["kind"], handler.KindRateLimited)
	}
}
