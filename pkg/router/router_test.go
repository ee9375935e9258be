package router

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arnavshah/plazas-api-go/pkg/auth"
	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/handlers"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/arnavshah/plazas-api-go/pkg/service"
	"github.com/arnavshah/plazas-api-go/pkg/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const accessCode = "205763"

type testServer struct {
	engine  *gin.Engine
	fixture testutil.Fixture
	tokens  *auth.Tokens
}

func newTestServer(t *testing.T, names ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	store := database.NewStore(db)
	f := testutil.Seed(t, store, names...)

	_, err := auth.EnsureAdminExists(db, "admin", "s3cret")
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	tokens := auth.NewTokens("test-secret", time.Hour)
	h := &handlers.Handler{
		Service:    service.New(store, log, true),
		Store:      store,
		Tokens:     tokens,
		AccessCode: accessCode,
		Log:        log,
	}
	return &testServer{engine: New(h), fixture: f, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *testServer) candidateToken(t *testing.T, nationalID string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/candidate", "", models.CandidateLoginRequest{NationalID: nationalID, AccessCode: accessCode})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)
	return resp.AccessToken
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := s.tokens.CreateToken("admin", auth.RoleAdmin, "")
	require.NoError(t, err)
	return token
}

func TestRoot(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), Version)
}

func TestAdminLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/admin", "", models.AdminLoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/admin", "", models.AdminLoginRequest{Username: "admin", Password: "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)

	w = s.do(t, http.MethodGet, "/admin/candidates", resp.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCandidateLogin(t *testing.T) {
	s := newTestServer(t, "A")

	w := s.do(t, http.MethodPost, "/auth/candidate", "", models.CandidateLoginRequest{NationalID: "A", AccessCode: "000000"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/candidate", "", models.CandidateLoginRequest{NationalID: "nobody", AccessCode: accessCode})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/candidate", "", map[string]string{"national_id": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := s.candidateToken(t, "A")
	w = s.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me struct {
		Candidate      models.Candidate `json:"candidate"`
		MaxPreferences int              `json:"max_preferences"`
	}
	decode(t, w, &me)
	assert.Equal(t, s.fixture.Candidates["A"], me.Candidate.ID)
	assert.Equal(t, 1, me.MaxPreferences)
}

func TestRoles(t *testing.T) {
	s := newTestServer(t, "A")
	candidate := s.candidateToken(t, "A")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/me", "garbage", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/admin/reset", candidate, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/me", s.adminToken(t), nil).Code)
}

func TestPreferenceFlow(t *testing.T) {
	s := newTestServer(t, "A", "B")
	x, y := s.fixture.Locations["X"], s.fixture.Locations["Y"]
	tokenA := s.candidateToken(t, "A")
	tokenB := s.candidateToken(t, "B")

	w := s.do(t, http.MethodPut, "/api/me/preferences", tokenA, models.SavePreferencesRequest{Preferences: testutil.Prefs(x, y)})
	assert.Equal(t, http.StatusBadRequest, w.Code, "rank 1 allows a single preference")

	w = s.do(t, http.MethodPut, "/api/me/preferences", tokenA, models.SavePreferencesRequest{Preferences: testutil.Prefs(x)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/me/preferences/toggle", tokenB, models.TogglePreferenceRequest{LocationID: x})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/me/preferences/toggle", tokenB, models.TogglePreferenceRequest{LocationID: y})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var toggled struct {
		Preferences []models.Preference `json:"preferences"`
		Changed     bool                `json:"changed"`
	}
	decode(t, w, &toggled)
	assert.True(t, toggled.Changed)
	assert.Equal(t, testutil.Prefs(x, y), toggled.Preferences)

	w = s.do(t, http.MethodGet, "/api/locations", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var locs struct {
		Locations []models.LocationStatus `json:"locations"`
	}
	decode(t, w, &locs)
	require.Len(t, locs.Locations, 2)
	for _, l := range locs.Locations {
		assert.Equal(t, 1, l.Occupied, l.Municipality)
		assert.Equal(t, "full", l.Status)
	}

	w = s.do(t, http.MethodGet, "/api/locations?q=x", tokenB, nil)
	decode(t, w, &locs)
	assert.Len(t, locs.Locations, 1)

	w = s.do(t, http.MethodGet, "/api/me/preferences.csv", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "position,department,municipality,capacity,occupied,status\n1,D1,X,1,1,full\n2,D1,Y,1,1,full\n", w.Body.String())

	w = s.do(t, http.MethodPost, "/api/me/preferences/toggle", tokenB, models.TogglePreferenceRequest{LocationID: "nowhere"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminFlow(t *testing.T) {
	s := newTestServer(t, "A", "B")
	x := s.fixture.Locations["X"]
	a, b := s.fixture.Candidates["A"], s.fixture.Candidates["B"]
	admin := s.adminToken(t)

	for _, name := range []string{"A", "B"} {
		w := s.do(t, http.MethodPut, "/api/me/preferences", s.candidateToken(t, name), models.SavePreferencesRequest{Preferences: testutil.Prefs(x)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	var alloc models.AllocationResponse
	w := s.do(t, http.MethodGet, "/admin/allocation", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &alloc)
	assert.Equal(t, x, alloc.Placements[a])
	assert.Equal(t, []string{b}, alloc.Unplaced)

	w = s.do(t, http.MethodPut, "/admin/candidates/"+b+"/rank", admin, models.SetRankRequest{Rank: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/admin/candidates/"+a+"/rank", admin, models.SetRankRequest{Rank: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPut, "/admin/candidates/"+b+"/rank?rank=1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPut, "/admin/candidates/"+b+"/rank", admin, map[string]int{"rank": -2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/admin/allocation", admin, nil)
	decode(t, w, &alloc)
	assert.Equal(t, x, alloc.Placements[b])

	w = s.do(t, http.MethodPut, "/admin/candidates/"+b+"/assignment", admin, models.SetAssignmentRequest{LocationID: x})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPut, "/admin/candidates/missing/assignment", admin, models.SetAssignmentRequest{LocationID: x})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/admin/candidates?q=b", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Candidates []models.CandidateView `json:"candidates"`
	}
	decode(t, w, &listed)
	require.Len(t, listed.Candidates, 1)
	assert.Equal(t, "X", listed.Candidates[0].AssignedMunicipality)

	w = s.do(t, http.MethodGet, "/admin/export/candidates.csv", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"rank,score,national_id,name,assigned_location,provisional_location\n1,0.00,B,B,X,\n3,0.00,A,A,,X\n",
		w.Body.String())

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/admin/reset", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = s.do(t, http.MethodGet, "/admin/validate", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)
}

func TestImport(t *testing.T) {
	s := newTestServer(t, "A")
	admin := s.adminToken(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("candidates_file", "candidates.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("national_id,name,rank,score\nZ,Zoe,1,99\n"))
	require.NoError(t, err)
	part, err = mw.CreateFormFile("locations_file", "locations.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("department,municipality,capacity\nD2,W,4\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Z duplicates A's rank, which strict mode reports
	w = s.do(t, http.MethodGet, "/admin/validate", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
	assert.True(t, strings.Contains(w.Body.String(), "share rank 1"))

	w = s.do(t, http.MethodGet, "/admin/allocation", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/admin/candidates", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/import", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
