package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/config"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/otp"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/token"
)

// fakeUserStore keeps users in memory, keyed by ID and email.
type fakeUserStore struct {
	byID    map[string]*model.User
	byEmail map[string]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserStore) CreateUser(user *model.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()
	f.byID[user.UserID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserStore) GetUserByID(userID string) (*model.User, error) {
	if user, ok := f.byID[userID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeUserStore) GetUserByEmail(email string) (*model.User, error) {
	if user, ok := f.byEmail[email]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeUserStore) IsEmailTaken(email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeUserStore) IsPhoneTaken(phoneHash string) (bool, error) {
	for _, user := range f.byID {
		if user.PhoneHash == phoneHash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserStore) UpdatePassword(userID, passwordHash, passwordSalt string, pepperVersion int) error {
	user, ok := f.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordSalt = passwordSalt
	user.PepperVersion = pepperVersion
	return nil
}

func (f *fakeUserStore) UpdateLastLogin(userID string, at time.Time) error {
	user, ok := f.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	user.LastLoginAt = &at
	return nil
}

func (f *fakeUserStore) SetAdmin(userID string, isAdmin bool) error {
	user, ok := f.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	user.IsAdmin = isAdmin
	return nil
}

// fakeOTPRows implements scylla.OTPStore, newest row first.
type fakeOTPRows struct {
	rows []*model.OTP
}

func (f *fakeOTPRows) CreateOTP(record *model.OTP) error {
	if record.OTPID == "" {
		record.OTPID = uuid.New().String()
	}
	f.rows = append([]*model.OTP{record}, f.rows...)
	return nil
}

func (f *fakeOTPRows) GetLatestUnused(email string) (*model.OTP, error) {
	for _, row := range f.rows {
		if row.Email == email && !row.IsUsed {
			copied := *row
			return &copied, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeOTPRows) UpdateAttempts(record *model.OTP) error {
	for _, row := range f.rows {
		if row.OTPID == record.OTPID {
			row.AttemptCount = record.AttemptCount
			return nil
		}
	}
	return scylla.ErrNotFound
}

func (f *fakeOTPRows) MarkUsed(record *model.OTP) error {
	for _, row := range f.rows {
		if row.OTPID == record.OTPID {
			row.IsUsed = true
			return nil
		}
	}
	return scylla.ErrNotFound
}

// fakeMailer records sent mail and can be told to fail.
type fakeMailer struct {
	sent []string
	fail bool
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.fail {
		return errors.New("smtp connection refused")
	}
	f.sent = append(f.sent, body)
	return nil
}

type fakeDenylist struct {
	revoked map[string]bool
}

func (f *fakeDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

type authFixture struct {
	svc     *AuthService
	users   *fakeUserStore
	mailer  *fakeMailer
	hasher  *hashing.Hasher
	issuer  *token.Issuer
	lockout *lockout.MemoryStore
	clock   *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clockFn := func() time.Time { return now }

	hasher := hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
		},
	})

	users := newFakeUserStore()
	mailer := &fakeMailer{}

	store := lockout.NewMemoryStore()
	store.SetClock(clockFn)
	policy := lockout.NewPolicy(store, 5, 30*time.Second, 24*time.Hour)

	ledger := otp.NewLedger(&fakeOTPRows{}, hasher, 5*time.Minute, 5, 6)
	ledger.SetClock(clockFn)

	issuer := token.NewIssuer("test-secret", 15*time.Minute, 30*24*time.Hour)
	issuer.SetClock(clockFn)

	denylist := &fakeDenylist{revoked: make(map[string]bool)}

	svc := NewAuthService(users, hasher, policy, ledger, issuer, denylist,
		mailer, nil, zap.NewNop())

	return &authFixture{
		svc:     svc,
		users:   users,
		mailer:  mailer,
		hasher:  hasher,
		issuer:  issuer,
		lockout: store,
		clock:   &now,
	}
}

func (f *authFixture) addUser(t *testing.T, email, password string) *model.User {
	t.Helper()

	hashed, err := f.hasher.HashPassword(password)
	require.NoError(t, err)

	user := &model.User{
		Username:      "tester",
		Email:         email,
		PasswordHash:  hashed.Hash,
		PasswordSalt:  hashed.Salt,
		PepperVersion: hashed.PepperVersion,
		IsActive:      true,
	}
	require.NoError(t, f.users.CreateUser(user))
	return user
}

var codePattern = regexp.MustCompile(`code is: ([0-9a-f]{6})`)

func (f *authFixture) lastMailedCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.mailer.sent)
	match := codePattern.FindStringSubmatch(f.mailer.sent[len(f.mailer.sent)-1])
	require.Len(t, match, 2)
	return match[1]
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	user, pair, err := f.svc.Login(ctx, &LoginRequest{
		Email:    "a@example.com",
		Password: "hunter2hunter2",
	}, RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotNil(t, user.LastLoginAt)

	claims, err := f.issuer.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, claims.Subject)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	_, _, err := f.svc.Login(ctx, &LoginRequest{
		Email:    "a@example.com",
		Password: "wrong",
	}, RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmailIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.svc.Login(context.Background(), &LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever12345",
	}, RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLocksAfterFiveFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	bad := &LoginRequest{Email: "a@example.com", Password: "wrong"}
	for i := 0; i < 4; i++ {
		_, _, err := f.svc.Login(ctx, bad, RequestMeta{})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Fifth failure trips the lock
	_, _, err := f.svc.Login(ctx, bad, RequestMeta{})
	var locked *lockout.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 30, locked.RemainingSeconds())

	// While locked even the correct password is rejected with the lock error
	good := &LoginRequest{Email: "a@example.com", Password: "hunter2hunter2"}
	_, _, err = f.svc.Login(ctx, good, RequestMeta{})
	require.ErrorAs(t, err, &locked)

	// After the lock expires the account works again
	*f.clock = f.clock.Add(31 * time.Second)
	_, _, err = f.svc.Login(ctx, good, RequestMeta{})
	assert.NoError(t, err)
}

func TestLoginSuccessResetsFailureStreak(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	bad := &LoginRequest{Email: "a@example.com", Password: "wrong"}
	good := &LoginRequest{Email: "a@example.com", Password: "hunter2hunter2"}

	for i := 0; i < 4; i++ {
		f.svc.Login(ctx, bad, RequestMeta{})
	}
	_, _, err := f.svc.Login(ctx, good, RequestMeta{})
	require.NoError(t, err)

	// The streak starts over: four more failures do not lock
	for i := 0; i < 4; i++ {
		_, _, err := f.svc.Login(ctx, bad, RequestMeta{})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "a@example.com", "hunter2hunter2")
	f.users.byID[user.UserID].IsActive = false

	_, _, err := f.svc.Login(ctx, &LoginRequest{
		Email:    "a@example.com",
		Password: "hunter2hunter2",
	}, RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.ForgotPassword(context.Background(), "nobody@example.com", RequestMeta{})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.mailer.sent)
}

func TestForgotPasswordDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "a@example.com", "hunter2hunter2")
	f.mailer.fail = true

	err := f.svc.ForgotPassword(context.Background(), "a@example.com", RequestMeta{})
	assert.ErrorIs(t, err, ErrEmailDelivery)
}

func TestRecoveryFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "a@example.com", "hunter2hunter2")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@example.com", RequestMeta{}))
	code := f.lastMailedCode(t)

	// A wrong guess reports the remaining budget
	_, _, err := f.svc.CheckOTP(ctx, "a@example.com", "000000", RequestMeta{})
	var mismatch *otp.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Remaining)

	// The correct code logs the user in
	got, pair, err := f.svc.CheckOTP(ctx, "a@example.com", code, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, user.UserID, got.UserID)

	// And the issued token lets the user change the password
	claims, err := f.issuer.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	require.NoError(t, f.svc.ChangePassword(ctx, claims.Subject, "new-password-1", RequestMeta{}))

	_, _, err = f.svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "hunter2hunter2"}, RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "new-password-1"}, RequestMeta{})
	assert.NoError(t, err)
}

func TestRecoveryCodeExpires(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@example.com", RequestMeta{}))
	code := f.lastMailedCode(t)

	*f.clock = f.clock.Add(5*time.Minute + time.Second)

	_, _, err := f.svc.CheckOTP(ctx, "a@example.com", code, RequestMeta{})
	assert.ErrorIs(t, err, otp.ErrCodeExpired)
}

func TestChangePasswordValidation(t *testing.T) {
	f := newAuthFixture(t)
	user := f.addUser(t, "a@example.com", "hunter2hunter2")

	err := f.svc.ChangePassword(context.Background(), user.UserID, "short", RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefreshAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	_, pair, err := f.svc.Login(ctx, &LoginRequest{
		Email:    "a@example.com",
		Password: "hunter2hunter2",
	}, RequestMeta{})
	require.NoError(t, err)

	fresh, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, RequestMeta{}))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrTokenRevoked)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@example.com", "hunter2hunter2")

	_, pair, err := f.svc.Login(ctx, &LoginRequest{
		Email:    "a@example.com",
		Password: "hunter2hunter2",
	}, RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestLoginValidatesInput(t *testing.T) {
	f := newAuthFixture(t)

	cases := []*LoginRequest{
		nil,
		{Email: "", Password: "x"},
		{Email: "a@example.com", Password: ""},
	}
	for i, req := range cases {
		_, _, err := f.svc.Login(context.Background(), req, RequestMeta{})
		assert.ErrorIs(t, err, ErrInvalidInput, fmt.Sprintf("case %d", i))
	}
}
