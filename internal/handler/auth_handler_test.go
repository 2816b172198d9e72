package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/config"
	"github.com/shopfive/backend/internal/encryption"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/otp"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/upload"
)

type userStoreStub struct {
	byID    map[string]*model.User
	byEmail map[string]*model.User
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (s *userStoreStub) CreateUser(user *model.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	s.byID[user.UserID] = user
	s.byEmail[user.Email] = user
	return nil
}

func (s *userStoreStub) GetUserByID(userID string) (*model.User, error) {
	if user, ok := s.byID[userID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, scylla.ErrNotFound
}

func (s *userStoreStub) GetUserByEmail(email string) (*model.User, error) {
	if user, ok := s.byEmail[email]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, scylla.ErrNotFound
}

func (s *userStoreStub) IsEmailTaken(email string) (bool, error) {
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *userStoreStub) IsPhoneTaken(phoneHash string) (bool, error) {
	for _, user := range s.byID {
		if user.PhoneHash == phoneHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *userStoreStub) UpdatePassword(userID, passwordHash, passwordSalt string, pepperVersion int) error {
	user, ok := s.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordSalt = passwordSalt
	user.PepperVersion = pepperVersion
	return nil
}

func (s *userStoreStub) UpdateLastLogin(userID string, at time.Time) error {
	if _, ok := s.byID[userID]; !ok {
		return scylla.ErrNotFound
	}
	return nil
}

func (s *userStoreStub) SetAdmin(userID string, isAdmin bool) error {
	user, ok := s.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	user.IsAdmin = isAdmin
	return nil
}

type otpStoreStub struct {
	rows []*model.OTP
}

func (s *otpStoreStub) CreateOTP(record *model.OTP) error {
	if record.OTPID == "" {
		record.OTPID = uuid.New().String()
	}
	s.rows = append([]*model.OTP{record}, s.rows...)
	return nil
}

func (s *otpStoreStub) GetLatestUnused(email string) (*model.OTP, error) {
	for _, row := range s.rows {
		if row.Email == email && !row.IsUsed {
			copied := *row
			return &copied, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (s *otpStoreStub) UpdateAttempts(record *model.OTP) error {
	for _, row := range s.rows {
		if row.OTPID == record.OTPID {
			row.AttemptCount = record.AttemptCount
			return nil
		}
	}
	return scylla.ErrNotFound
}

func (s *otpStoreStub) MarkUsed(record *model.OTP) error {
	for _, row := range s.rows {
		if row.OTPID == record.OTPID {
			row.IsUsed = true
			return nil
		}
	}
	return scylla.ErrNotFound
}

type mailerStub struct {
	sent []string
}

func (s *mailerStub) Send(to, subject, body string) error {
	s.sent = append(s.sent, body)
	return nil
}

type authFixture struct {
	router chi.Router
	mailer *mailerStub
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
		},
	}

	hasher := hashing.NewHasher(cfg)
	users := newUserStoreStub()
	mailer := &mailerStub{}

	policy := lockout.NewPolicy(lockout.NewMemoryStore(), 5, 30*time.Second, 24*time.Hour)
	ledger := otp.NewLedger(&otpStoreStub{}, hasher, 5*time.Minute, 5, 6)
	issuer := token.NewIssuer("test-secret", 15*time.Minute, 30*24*time.Hour)

	authSvc := service.NewAuthService(users, hasher, policy, ledger, issuer,
		nil, mailer, nil, zap.NewNop())
	userSvc := service.NewUserService(users, hasher,
		encryption.NewEncryptionManager(cfg, nil), issuer, nil, zap.NewNop())

	handler := NewAuthHandler(authSvc, userSvc, upload.NewSaver(t.TempDir()),
		issuer, zap.NewNop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	return &authFixture{router: router, mailer: mailer}
}

func registerForm(t *testing.T, email, photoName string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("username", "tester"))
	require.NoError(t, form.WriteField("email", email))
	require.NoError(t, form.WriteField("phone", "+15550109999"))
	require.NoError(t, form.WriteField("password", "hunter2hunter2"))
	if photoName != "" {
		part, err := form.CreateFormFile("photo", photoName)
		require.NoError(t, err)
		_, err = part.Write([]byte("image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, form.Close())
	return &buf, form.FormDataContentType()
}

func (f *authFixture) register(t *testing.T, email string) {
	t.Helper()

	body, contentType := registerForm(t, email, "avatar.png")
	req := httptest.NewRequest(http.MethodPost, "/auths/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *authFixture) login(t *testing.T, email string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/auths/login",
		strings.NewReader(`{"email":"`+email+`","password":"hunter2hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoginKeepsRefreshTokenOutOfBody(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@example.com")

	rec := f.login(t, "a@example.com")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotContains(t, body, "refresh_token")

	// The refresh token travels only in its HttpOnly cookie
	refresh := cookieByName(rec, "refresh_token_cookie")
	require.NotNil(t, refresh)
	assert.NotEmpty(t, refresh.Value)
	assert.True(t, refresh.HttpOnly)
	assert.True(t, refresh.Secure)
	assert.Equal(t, http.SameSiteLaxMode, refresh.SameSite)
}

func TestCheckOTPKeepsRefreshTokenOutOfBody(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@example.com")

	req := httptest.NewRequest(http.MethodPost, "/auths/forgot_password",
		strings.NewReader(`{"email":"a@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotEmpty(t, f.mailer.sent)
	match := regexp.MustCompile(`code is: ([0-9a-f]{6})`).FindStringSubmatch(f.mailer.sent[0])
	require.Len(t, match, 2)

	req = httptest.NewRequest(http.MethodPost, "/auths/check_otp",
		strings.NewReader(`{"email":"a@example.com","otp_code":"`+match[1]+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotContains(t, body, "refresh_token")
	require.NotNil(t, cookieByName(rec, "refresh_token_cookie"))
}

func TestRefreshKeepsRefreshTokenOutOfBody(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@example.com")

	loginRec := f.login(t, "a@example.com")
	require.Equal(t, http.StatusOK, loginRec.Code)
	refresh := cookieByName(loginRec, "refresh_token_cookie")
	require.NotNil(t, refresh)

	req := httptest.NewRequest(http.MethodPost, "/auths/refresh_user", nil)
	req.AddCookie(refresh)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotContains(t, body, "refresh_token")

	rotated := cookieByName(rec, "refresh_token_cookie")
	require.NotNil(t, rotated)
	assert.NotEmpty(t, rotated.Value)
}

func TestRegisterDuplicateEmailIsBadRequest(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@example.com")

	body, contentType := registerForm(t, "a@example.com", "avatar.png")
	req := httptest.NewRequest(http.MethodPost, "/auths/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "error", decodeBody(t, rec)["msg"])
}

func TestRegisterWithoutPhotoIsNotFound(t *testing.T) {
	f := newAuthFixture(t)

	body, contentType := registerForm(t, "a@example.com", "")
	req := httptest.NewRequest(http.MethodPost, "/auths/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestRegisterDisallowedPhotoIsNotFound(t *testing.T) {
	f := newAuthFixture(t)

	body, contentType := registerForm(t, "a@example.com", "payload.sh")
	req := httptest.NewRequest(http.MethodPost, "/auths/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}
