package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/auth"
	"github.com/lk2023060901/file-manager-backend/internal/conf"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	fmdata "github.com/lk2023060901/file-manager-backend/internal/filemanager/data"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/service"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T) *conf.Config {
	t.Helper()
	t.Setenv("FILEMANAGER_STORAGE_BACKEND", conf.StorageMemory)
	t.Setenv("FILEMANAGER_METADATA_BACKEND", conf.MetadataMemory)
	t.Setenv("FILEMANAGER_SERVER_MODE", "test")
	cfg, err := conf.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func newTestHTTPServer(cfg *conf.Config) (*HTTPServer, *metrics.Metrics) {
	log := logger.NewNop()
	m := metrics.New()
	uc := biz.NewFileUseCase(fmdata.NewMemoryObjectStore(), fmdata.NewMemoryEntryRepo(), nil, nil, m, biz.Options{
		DefaultBucket:   cfg.Storage.DefaultBucket,
		DefaultUploader: cfg.Files.DefaultUploader,
	}, log)
	svc := service.NewFileService(uc, nil, cfg.Files.MaxUploadSize, log)
	return NewHTTPServer(cfg, log, svc, m), m
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTPServer_Routes(t *testing.T) {
	srv, _ := newTestHTTPServer(testConfig(t))
	h := srv.Handler()

	w := get(h, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))

	w = get(h, "/api/v1/files", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `filemanager_operations_total{op="list",result="success"} 1`)
}

func TestHTTPServer_AuthEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "secret"
	srv, _ := newTestHTTPServer(cfg)
	h := srv.Handler()

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/files", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)

	token, err := auth.NewJWTManager("secret", "", time.Minute).GenerateAccessToken("user-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/files", token).Code)
}

func TestHTTPServer_OptionalAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "secret"
	srv, _ := newTestHTTPServer(cfg)

	assert.Equal(t, http.StatusOK, get(srv.Handler(), "/api/v1/files", "").Code)
	assert.Equal(t, http.StatusOK, get(srv.Handler(), "/api/v1/files", "garbage").Code)
}

func TestGRPCServer_Health(t *testing.T) {
	cfg := testConfig(t)
	srv := NewGRPCServer(cfg, logger.NewNop())
	assert.True(t, srv.Enabled())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := healthpb.NewHealthClient(conn)
	for _, name := range []string{"", FileServiceName} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}
