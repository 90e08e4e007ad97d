package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"tenantmail/backend/internal/storage"
)

// stubStore 只实现健康检查，其余存储操作不会被探针触达
type stubStore struct {
	storage.Store
	err error
}

func (s *stubStore) Health() error { return s.err }

func TestHealthEndpoints(t *testing.T) {
	t.Run("存活探针返回200", func(t *testing.T) {
		hc := NewHealthChecker(&stubStore{}, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		hc.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("数据库正常时就绪探针返回200", func(t *testing.T) {
		hc := NewHealthChecker(&stubStore{}, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("数据库异常时就绪探针返回503", func(t *testing.T) {
		hc := NewHealthChecker(&stubStore{err: errors.New("connection refused")}, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
