package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/config"
	"sudooom.im.group/internal/handler"
	"sudooom.im.group/internal/jwt"
	"sudooom.im.group/internal/jwt/jwttest"
	"sudooom.im.group/internal/service"
	"sudooom.im.group/internal/store/sqlite"
	apperrors "sudooom.im.group/pkg/errors"
	"sudooom.im.group/pkg/snowflake"
)

// APIResponse 用于解析响应体
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "group.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	opts := service.Options{Store: s, IDs: node}
	jwtService := jwt.NewService(testSecret, "im-web")
	cfg := &config.Config{App: config.AppConfig{Mode: gin.TestMode}}

	r := SetupRouter(cfg, jwtService, Handlers{
		Group:         handler.NewGroupHandler(service.NewGroupService(opts)),
		Member:        handler.NewMemberHandler(service.NewMemberService(opts)),
		Invitation:    handler.NewInvitationHandler(service.NewInvitationService(opts)),
		DirectMessage: handler.NewDirectMessageHandler(service.NewDirectMessageService(opts)),
	})
	return &testServer{router: r}
}

// do 以 caller 身份发起请求
func (s *testServer) do(t *testing.T, caller, method, path string, body any) (int, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token := jwttest.AccessToken(t, testSecret, "im-web", caller, time.Minute)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := setupTestServer(t)

	status, resp := s.do(t, "", http.MethodGet, "/api/v1/groups", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperrors.CodeTokenInvalid, resp.Code)
}

func TestRouter_GroupInvitationFlow(t *testing.T) {
	s := setupTestServer(t)

	status, resp := s.do(t, "alice", http.MethodPost, "/api/v1/groups", map[string]string{"name": "hikers"})
	require.Equal(t, http.StatusOK, status)
	var group struct {
		Id          int64 `json:"id"`
		MemberCount int   `json:"memberCount"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &group))
	assert.Equal(t, 1, group.MemberCount)
	groupPath := fmt.Sprintf("/api/v1/groups/%d", group.Id)

	status, resp = s.do(t, "alice", http.MethodPost, groupPath+"/invitations", map[string]string{"userId": "bob"})
	require.Equal(t, http.StatusOK, status)
	var invitation struct {
		Id int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &invitation))

	status, resp = s.do(t, "alice", http.MethodPost, groupPath+"/invitations", map[string]string{"userId": "bob"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperrors.CodeInvitationPending, resp.Code)

	status, resp = s.do(t, "bob", http.MethodGet, "/api/v1/invitations", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		List []struct {
			Id        int64  `json:"id"`
			GroupName string `json:"groupName"`
		} `json:"list"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list.List, 1)
	assert.Equal(t, "hikers", list.List[0].GroupName)

	acceptPath := fmt.Sprintf("/api/v1/invitations/%d/accept", invitation.Id)
	status, _ = s.do(t, "bob", http.MethodPost, acceptPath, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp = s.do(t, "bob", http.MethodPost, acceptPath, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperrors.CodeInvitationProcessed, resp.Code)

	status, _ = s.do(t, "bob", http.MethodGet, groupPath+"/members", nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = s.do(t, "carol", http.MethodGet, groupPath, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperrors.CodeNotGroupMember, resp.Code)

	status, _ = s.do(t, "alice", http.MethodPost, groupPath+"/leave", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, "alice", http.MethodPut, groupPath+"/members/bob/role", map[string]string{"role": "owner"})
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "alice", http.MethodPost, groupPath+"/leave", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "bob", http.MethodPost, groupPath+"/read", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "bob", http.MethodPut, groupPath+"/settings", map[string]any{"muted": true})
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "bob", http.MethodDelete, groupPath, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "bob", http.MethodGet, groupPath, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_Validation(t *testing.T) {
	s := setupTestServer(t)

	status, resp := s.do(t, "alice", http.MethodPost, "/api/v1/groups", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.CodeInvalidParams, resp.Code)

	status, resp = s.do(t, "alice", http.MethodGet, "/api/v1/groups/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.CodeInvalidParams, resp.Code)

	status, _ = s.do(t, "alice", http.MethodGet, "/api/v1/groups/42", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = s.do(t, "alice", http.MethodPut, "/api/v1/groups/42", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.CodeInvalidParams, resp.Code)
}

func TestRouter_DirectMessages(t *testing.T) {
	s := setupTestServer(t)

	status, resp := s.do(t, "u1", http.MethodPost, "/api/v1/direct-messages", map[string]string{"userId": "u2"})
	require.Equal(t, http.StatusOK, status)
	var first struct {
		GroupId     int64  `json:"groupId"`
		OtherUserId string `json:"otherUserId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Equal(t, "u2", first.OtherUserId)

	status, resp = s.do(t, "u2", http.MethodPost, "/api/v1/direct-messages", map[string]string{"userId": "u1"})
	require.Equal(t, http.StatusOK, status)
	var second struct {
		GroupId int64 `json:"groupId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &second))
	assert.Equal(t, first.GroupId, second.GroupId)

	status, resp = s.do(t, "u1", http.MethodPost, "/api/v1/direct-messages", map[string]string{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.CodeCannotMessageSelf, resp.Code)

	status, resp = s.do(t, "u2", http.MethodGet, "/api/v1/direct-messages", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		List []json.RawMessage `json:"list"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Len(t, list.List, 1)
}
