package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storeadmin/internal/jobs/background"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockJobRunner struct {
	mock.Mock
}

func (m *MockJobRunner) GetJobStatus() map[string]interface{} {
	return m.Called().Get(0).(map[string]interface{})
}

func (m *MockJobRunner) RunNow(name string) error {
	return m.Called(name).Error(0)
}

func TestJobHandlers(t *testing.T) {
	runner := new(MockJobRunner)
	runner.On("GetJobStatus").Return(map[string]interface{}{"total_jobs": 1, "jobs": []string{"category-refresh"}})
	runner.On("RunNow", "category-refresh").Return(nil).Once()
	runner.On("RunNow", "missing").Return(fmt.Errorf("%w: missing", background.ErrJobNotFound)).Once()

	h := NewJobHandlers(runner)
	e := echo.New()
	e.GET("/v1/jobs", h.ListJobs)
	e.POST("/v1/jobs/:name/run", h.RunJob)

	tests := []struct {
		name   string
		method string
		path   string
		code   int
		body   string
	}{
		{"list", http.MethodGet, "/v1/jobs", http.StatusOK, `"total_jobs":1`},
		{"run", http.MethodPost, "/v1/jobs/category-refresh/run", http.StatusAccepted, `"triggered"`},
		{"unknown job", http.MethodPost, "/v1/jobs/missing/run", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
	runner.AssertExpectations(t)
}
