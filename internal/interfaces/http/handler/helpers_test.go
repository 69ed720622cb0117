package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/interfaces/http/dto"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

var (
	testTenantID = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	testUserID   = uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	testUnitID   = uuid.MustParse("00000000-0000-0000-0000-0000000000cc")
)

func masterScope() access.Scope {
	return access.ScopeFor(access.Caller{UserID: testUserID, TenantID: testTenantID, Role: access.RoleMaster})
}

func managerScope() access.Scope {
	unit := testUnitID
	return access.ScopeFor(access.Caller{UserID: testUserID, TenantID: testTenantID, Role: access.RoleUnitManager, ManagedUnit: &unit})
}

// newTestRouter returns a router whose requests run as scope.
func newTestRouter(scope access.Scope) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetIdentity(c, access.Caller{UserID: scope.UserID, TenantID: scope.TenantID, Role: scope.Role}, scope)
		c.Next()
	})
	return r
}

// newJSONRequest builds a request with body marshalled as JSON. A string
// body is sent as is.
func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return serve(r, newJSONRequest(t, method, path, body))
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData unmarshals the data field of a success envelope into out.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}
