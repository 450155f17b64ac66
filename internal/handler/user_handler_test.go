package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/model"
	"mindscribe-go/internal/service"
	"mindscribe-go/internal/session"
)

type fakeLogoutService struct {
	service.UserService
	refreshToken string
	calls        int
}

func (f *fakeLogoutService) Logout(_ context.Context, _ *session.Context, refreshToken string) error {
	f.calls++
	f.refreshToken = refreshToken
	return nil
}

func newLogoutRouter(svc service.UserService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/logout", func(c *gin.Context) {
		session.Set(c, &session.Context{User: &model.User{UID: "u1"}})
	}, NewUserHandler(svc).Logout)
	return r
}

func TestLogoutPassesRefreshToken(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantRefresh string
		wantCalls   int
	}{
		{"no body", "", http.StatusOK, "", 1},
		{"with refresh token", `{"refreshToken":"r1"}`, http.StatusOK, "r1", 1},
		{"malformed body", `{`, http.StatusBadRequest, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeLogoutService{}
			req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			newLogoutRouter(svc).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if svc.calls != tt.wantCalls || svc.refreshToken != tt.wantRefresh {
				t.Errorf("calls=%d refresh=%q, want %d %q", svc.calls, svc.refreshToken, tt.wantCalls, tt.wantRefresh)
			}
		})
	}
}
