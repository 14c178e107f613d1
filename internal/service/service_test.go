package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fleetwatch/internal/models"
	"fleetwatch/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.GPSFix{}, &models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newGPSService(t *testing.T) (*gpsService, *memoryCache, *testClock) {
	t.Helper()
	c := newMemoryCache()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewGPSService(repository.NewGPSRepository(newTestDB(t)), c, GPSServiceConfig{CacheTTL: time.Minute}).(*gpsService)
	svc.now = clock.now
	return svc, c, clock
}

func f64(v float64) *float64 { return &v }

func ingest(t *testing.T, svc GPSService, device string, lat, lng float64) *models.GPSFix {
	t.Helper()
	fix, err := svc.Ingest(context.Background(), IngestRequest{DeviceID: device, Latitude: f64(lat), Longitude: f64(lng)})
	if err != nil {
		t.Fatalf("ingest %s: %v", device, err)
	}
	return fix
}

func TestIngestAndQueryScenario(t *testing.T) {
	svc, _, _ := newGPSService(t)
	ctx := context.Background()

	ingest(t, svc, "T1", 10, 20)
	ingest(t, svc, "T1", 10.001, 20.001)
	third := ingest(t, svc, "T1", 10.002, 20.002)

	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != third.ID {
		t.Fatalf("latest should be the third fix only, got %+v", latest)
	}

	list, err := svc.List(ctx, repository.GPSFilter{DeviceID: "T1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Latitude != 10.002 || list[2].Latitude != 10 {
		t.Fatalf("expected three fixes newest first, got %+v", list)
	}
}

func TestIngestRejectsOutOfRange(t *testing.T) {
	svc, _, _ := newGPSService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   IngestRequest
		field string
		msg   string
	}{
		{"latitude high", IngestRequest{DeviceID: "X", Latitude: f64(95), Longitude: f64(0)}, "latitude", "latitude must be between -90 and 90"},
		{"longitude low", IngestRequest{DeviceID: "X", Latitude: f64(0), Longitude: f64(-180.5)}, "longitude", "longitude must be between -180 and 180"},
		{"missing latitude", IngestRequest{DeviceID: "X", Longitude: f64(0)}, "latitude", "latitude is required"},
		{"blank device", IngestRequest{DeviceID: "   ", Latitude: f64(0), Longitude: f64(0)}, "device_id", "device_id is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ingest(ctx, tc.req)
			var verr *ValidationError
			if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field || verr.Message != tc.msg {
				t.Fatalf("got %s: %q", verr.Field, verr.Message)
			}
		})
	}

	count, err := svc.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("rejected fixes must not be stored, count=%d (%v)", count, err)
	}
}

func TestIngestStoresOptionalReadingsAsReported(t *testing.T) {
	svc, _, _ := newGPSService(t)
	ctx := context.Background()
	sats := -1

	fix, err := svc.Ingest(ctx, IngestRequest{
		DeviceID:   "X",
		Latitude:   f64(1),
		Longitude:  f64(2),
		Speed:      f64(-1),
		HDOP:       f64(-1),
		Battery:    f64(100.4),
		Satellites: &sats,
	})
	if err != nil {
		t.Fatalf("optional readings must not reject the fix: %v", err)
	}
	if *fix.Battery != 100.4 || *fix.Speed != -1 || *fix.HDOP != -1 || *fix.Satellites != -1 {
		t.Fatalf("readings altered: %+v", fix)
	}

	count, err := svc.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("count=%d (%v), want 1", count, err)
	}
}

func TestIngestAcceptsZeroCoordinates(t *testing.T) {
	svc, _, _ := newGPSService(t)
	fix := ingest(t, svc, "null-island", 0, 0)
	if fix.ID == 0 {
		t.Fatal("expected generated id")
	}
}

func TestCacheAsideAndInvalidation(t *testing.T) {
	svc, c, _ := newGPSService(t)
	ctx := context.Background()

	ingest(t, svc, "A", 1, 1)
	if _, err := svc.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if _, err := svc.Devices(ctx, time.Now()); err != nil {
		t.Fatalf("devices: %v", err)
	}
	if !c.has("gps:latest") || !c.has("gps:devices") {
		t.Fatal("reads should populate the cache")
	}

	ingest(t, svc, "B", 2, 2)
	if c.has("gps:latest") || c.has("gps:devices") {
		t.Fatal("ingest should invalidate cached reads")
	}

	latest, err := svc.Latest(ctx)
	if err != nil || len(latest) != 2 {
		t.Fatalf("expected fresh latest with 2 devices, got %d (%v)", len(latest), err)
	}
}

// slowLatestRepo runs a hook after the latest-per-device read returns, to
// simulate an ingest committing while the read is in flight.
type slowLatestRepo struct {
	repository.GPSRepository
	afterRead func()
}

func (r *slowLatestRepo) LatestPerDevice(ctx context.Context) ([]models.GPSFix, error) {
	fixes, err := r.GPSRepository.LatestPerDevice(ctx)
	if hook := r.afterRead; hook != nil {
		r.afterRead = nil
		hook()
	}
	return fixes, err
}

func TestLatestDoesNotCacheReadOverlappingIngest(t *testing.T) {
	svc, c, _ := newGPSService(t)
	ctx := context.Background()
	ingest(t, svc, "A", 1, 1)

	repo := &slowLatestRepo{GPSRepository: svc.repo}
	repo.afterRead = func() { ingest(t, svc, "B", 2, 2) }
	svc.repo = repo

	stale, err := svc.Latest(ctx)
	if err != nil || len(stale) != 1 {
		t.Fatalf("in-flight read = %d fixes (%v)", len(stale), err)
	}
	if c.has("gps:latest") {
		t.Fatal("a read overlapping an ingest must not fill the cache")
	}

	fresh, err := svc.Latest(ctx)
	if err != nil || len(fresh) != 2 {
		t.Fatalf("next read = %d fixes (%v), want 2", len(fresh), err)
	}
	if !c.has("gps:latest") {
		t.Fatal("an undisturbed read should fill the cache")
	}
}

func TestDevicesActiveFlag(t *testing.T) {
	svc, _, clock := newGPSService(t)
	ctx := context.Background()

	ingest(t, svc, "old", 1, 1)
	clock.t = clock.t.Add(30 * time.Hour)
	ingest(t, svc, "new", 2, 2)

	summaries, err := svc.Devices(ctx, clock.t)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(summaries) != 2 || summaries[0].DeviceID != "new" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	if !summaries[0].Active || summaries[1].Active {
		t.Fatalf("active flags wrong: %+v", summaries)
	}

	// cached copy is re-evaluated against the new time
	later, err := svc.Devices(ctx, clock.t.Add(48*time.Hour))
	if err != nil || later[0].Active {
		t.Fatalf("expected every device inactive two days later: %+v (%v)", later, err)
	}
}

func TestDevicesEmpty(t *testing.T) {
	svc, _, _ := newGPSService(t)
	summaries, err := svc.Devices(context.Background(), time.Now())
	if err != nil || summaries == nil || len(summaries) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v (%v)", summaries, err)
	}
}

func TestMapSceneTrackedDevice(t *testing.T) {
	svc, _, clock := newGPSService(t)
	ctx := context.Background()

	ingest(t, svc, "T1", 10, 20)
	ingest(t, svc, "T1", 10.001, 20.001)
	ingest(t, svc, "T2", 1, 1)
	ingest(t, svc, "T2", 1.5, 1.5)

	scene, err := svc.MapScene(ctx, MapQuery{Tracked: []string{"T1"}}, clock.t)
	if err != nil {
		t.Fatalf("map scene: %v", err)
	}
	if len(scene.Polylines) != 1 || scene.Polylines[0].DeviceID != "T1" {
		t.Fatalf("only the tracked device should have a path: %+v", scene.Polylines)
	}
	if len(scene.Markers) != 3 {
		t.Fatalf("expected 2 T1 markers + 1 T2 marker, got %d", len(scene.Markers))
	}
	for _, m := range scene.Markers {
		if m.DeviceID == "T2" && m.Latitude != 1.5 {
			t.Fatalf("untracked device should show its newest point, got %v", m.Latitude)
		}
	}
}

func TestExport(t *testing.T) {
	svc, _, _ := newGPSService(t)
	ctx := context.Background()
	ingest(t, svc, "A", 1, 2)

	file, err := svc.Export(ctx, "csv", repository.GPSFilter{})
	if err != nil {
		t.Fatalf("csv export: %v", err)
	}
	if file.Rows != 1 || file.ContentType != "text/csv" || !strings.HasSuffix(file.Filename, ".csv") {
		t.Fatalf("unexpected csv export: %+v", file)
	}
	if !strings.Contains(string(file.Data), "A,1.000000,2.000000") {
		t.Fatalf("csv body missing row: %s", file.Data)
	}

	xlsx, err := svc.Export(ctx, "XLSX", repository.GPSFilter{})
	if err != nil || len(xlsx.Data) == 0 || !strings.HasSuffix(xlsx.Filename, ".xlsx") {
		t.Fatalf("xlsx export: %+v (%v)", xlsx, err)
	}

	if _, err := svc.Export(ctx, "pdf", repository.GPSFilter{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func newAuth(t *testing.T) (AuthService, *authService, repository.UserRepository) {
	t.Helper()
	users := repository.NewUserRepository(newTestDB(t))
	svc := NewAuthService(users, "test-secret", time.Hour)
	return svc, svc.(*authService), users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newAuth(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != models.RoleViewer || user.PasswordHash == "correct horse" {
		t.Fatalf("unexpected user: %+v", user)
	}

	_, err = svc.Register(ctx, RegisterRequest{FirstName: "A", LastName: "B", Email: "ADA@example.com", Password: "another pass"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}

	result, err := svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.LastLoginAt == nil {
		t.Fatal("login should record last access")
	}

	claims, err := svc.ParseToken(result.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != "ada@example.com" || claims.Role != models.RoleViewer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRegisterRequestNameKeys(t *testing.T) {
	cases := []struct {
		body  string
		first string
		last  string
	}{
		{`{"first_name":"Ada","last_name":"Lovelace"}`, "Ada", "Lovelace"},
		{`{"nombre":"Ada","apellido":"Lovelace"}`, "Ada", "Lovelace"},
		{`{"first_name":"Ada","nombre":"Other","apellido":"Lovelace"}`, "Ada", "Lovelace"},
	}
	for _, tc := range cases {
		var req RegisterRequest
		if err := json.Unmarshal([]byte(tc.body), &req); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.body, err)
		}
		if req.FirstName != tc.first || req.LastName != tc.last {
			t.Fatalf("%s decoded as %q %q", tc.body, req.FirstName, req.LastName)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAuth(t)
	_, err := svc.Register(context.Background(), RegisterRequest{FirstName: "A", LastName: "B", Email: "not-an-email", Password: "longenough"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	svc, impl, _ := newAuth(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.io", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result, err := svc.Login(ctx, LoginRequest{Email: "a@b.io", Password: "password1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	impl.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.ParseToken(result.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
	impl.now = time.Now

	other := NewAuthService(nil, "another-secret", time.Hour)
	if _, err := other.ParseToken(result.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token signed with another secret to be rejected, got %v", err)
	}
	if _, err := svc.ParseToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("expected garbage token to be rejected")
	}
}

func TestChangeRole(t *testing.T) {
	auth, _, users := newAuth(t)
	svc := NewUserService(users)
	ctx := context.Background()

	admin, _ := auth.Register(ctx, RegisterRequest{FirstName: "Ad", LastName: "Min", Email: "admin@x.io", Password: "password1"})
	target, _ := auth.Register(ctx, RegisterRequest{FirstName: "Op", LastName: "Er", Email: "op@x.io", Password: "password1"})

	updated, err := svc.ChangeRole(ctx, admin.ID, target.ID, ChangeRoleRequest{Role: models.RoleOperator})
	if err != nil || updated.Role != models.RoleOperator {
		t.Fatalf("change role: %+v (%v)", updated, err)
	}
	if _, err := svc.ChangeRole(ctx, admin.ID, admin.ID, ChangeRoleRequest{Role: models.RoleViewer}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for self change, got %v", err)
	}
	if _, err := svc.ChangeRole(ctx, admin.ID, 999, ChangeRoleRequest{Role: models.RoleViewer}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ChangeRole(ctx, admin.ID, target.ID, ChangeRoleRequest{Role: "root"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}

	if _, err := svc.Me(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Me, got %v", err)
	}
	list, err := svc.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d (%v)", len(list), err)
	}
}
