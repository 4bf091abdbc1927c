package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidMGG/geneaflow/pkg/audit"
	"github.com/DavidMGG/geneaflow/pkg/auth"
	"github.com/DavidMGG/geneaflow/pkg/geneaflow"
)

type testEnv struct {
	t      *testing.T
	server *httptest.Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := geneaflow.DefaultConfig()
	cfg.InMemory = true
	cfg.Audit = audit.Config{Enabled: false}
	db, err := geneaflow.Open("", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authCfg := auth.DefaultConfig([]byte("test-secret-at-least-32-bytes-long!!"))
	authCfg.BcryptCost = 4
	authenticator, err := auth.NewAuthenticator(authCfg)
	require.NoError(t, err)

	srv, err := New(db, authenticator, DefaultConfig())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{t: t, server: ts}
}

// do sends a JSON request and decodes the JSON response into out (if the
// pointer is non-nil). Returns the status code.
func (e *testEnv) do(method, path, token string, body, out any) int {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// signup registers and logs in a user, returning id and token.
func (e *testEnv) signup(username string) (id, token string) {
	e.t.Helper()

	var user struct {
		ID string `json:"id"`
	}
	status := e.do("POST", "/auth/register", "", map[string]string{
		"username": username,
		"password": "password123",
	}, &user)
	require.Equal(e.t, http.StatusCreated, status)

	var login struct {
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	}
	status = e.do("POST", "/auth/token", "", map[string]string{
		"username": username,
		"password": "password123",
	}, &login)
	require.Equal(e.t, http.StatusOK, status)
	return user.ID, login.Token.AccessToken
}

func TestHealthAndAuthFlow(t *testing.T) {
	env := newEnv(t)

	status := env.do("GET", "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	// Protected routes demand a token
	status = env.do("GET", "/trees", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	_, token := env.signup("ana")

	var me struct {
		Username string `json:"username"`
	}
	status = env.do("GET", "/auth/me", token, nil, &me)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ana", me.Username)

	// Wrong credentials
	status = env.do("POST", "/auth/token", "", map[string]string{
		"username": "ana", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Duplicate registration conflicts
	status = env.do("POST", "/auth/register", "", map[string]string{
		"username": "ana", "password": "password123",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestTreePersonRelationshipFlow(t *testing.T) {
	env := newEnv(t)
	_, ownerToken := env.signup("owner")
	viewerID, viewerToken := env.signup("viewer")

	var tree struct {
		ID string `json:"id"`
	}
	status := env.do("POST", "/trees", ownerToken, map[string]string{"name": "Familia"}, &tree)
	require.Equal(t, http.StatusCreated, status)

	// Outsider cannot see the tree yet
	status = env.do("GET", "/trees/"+tree.ID, viewerToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Invite as viewer
	status = env.do("POST", "/trees/"+tree.ID+"/collaborators", ownerToken, map[string]string{
		"userId": viewerID, "role": "viewer",
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	status = env.do("GET", "/trees/"+tree.ID, viewerToken, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	// Viewer cannot create persons
	status = env.do("POST", "/trees/"+tree.ID+"/persons", viewerToken, map[string]any{
		"displayName": "Intruso Uno",
		"birth":       map[string]string{"date": "1970"},
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Owner creates two persons
	var juan, ana struct {
		ID string `json:"id"`
	}
	status = env.do("POST", "/trees/"+tree.ID+"/persons", ownerToken, map[string]any{
		"givenNames":  []string{"Juan"},
		"familyNames": []string{"Sosa"},
		"sex":         "M",
		"birth":       map[string]string{"date": "1965"},
	}, &juan)
	require.Equal(t, http.StatusCreated, status)
	status = env.do("POST", "/trees/"+tree.ID+"/persons", ownerToken, map[string]any{
		"givenNames":  []string{"Ana"},
		"familyNames": []string{"Sosa"},
		"sex":         "F",
		"birth":       map[string]string{"date": "1990"},
	}, &ana)
	require.Equal(t, http.StatusCreated, status)

	// Invalid person payloads are 400s with a message
	var errResp struct {
		Message string `json:"message"`
	}
	status = env.do("POST", "/trees/"+tree.ID+"/persons", ownerToken, map[string]any{
		"displayName": "Sin Fecha",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, errResp.Message)

	// Parent relationship, then the reverse one closes a cycle
	var rel struct {
		ID string `json:"id"`
	}
	status = env.do("POST", "/trees/"+tree.ID+"/relationships", ownerToken, map[string]string{
		"type": "biological_parent", "fromId": juan.ID, "toId": ana.ID,
	}, &rel)
	require.Equal(t, http.StatusCreated, status)

	status = env.do("POST", "/trees/"+tree.ID+"/relationships", ownerToken, map[string]string{
		"type": "biological_parent", "fromId": ana.ID, "toId": juan.ID,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Message, "cycle")

	// Listing and search work for the viewer
	var list []map[string]any
	status = env.do("GET", "/trees/"+tree.ID+"/persons", viewerToken, nil, &list)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 2)

	var results []map[string]any
	status = env.do("GET", "/trees/"+tree.ID+"/search?q=ana", viewerToken, nil, &results)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, results, 1)

	// Unknown person is a 404
	status = env.do("GET", "/trees/"+tree.ID+"/persons/nope", ownerToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Deleting the relationship row leaves the person structure alone
	status = env.do("DELETE", "/trees/"+tree.ID+"/relationships/"+rel.ID, ownerToken, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	var person struct {
		FatherID string `json:"fatherId"`
	}
	status = env.do("GET", fmt.Sprintf("/trees/%s/persons/%s", tree.ID, ana.ID), ownerToken, nil, &person)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, juan.ID, person.FatherID)
}

func TestExportEndpoint(t *testing.T) {
	env := newEnv(t)
	_, token := env.signup("owner")

	var tree struct {
		ID string `json:"id"`
	}
	status := env.do("POST", "/trees", token, map[string]string{"name": "Exportable"}, &tree)
	require.Equal(t, http.StatusCreated, status)

	status = env.do("POST", "/trees/"+tree.ID+"/persons", token, map[string]any{
		"displayName": "Elena Sol",
		"birth":       map[string]string{"date": "1950"},
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var export struct {
		Tree    map[string]any   `json:"tree"`
		Persons []map[string]any `json:"persons"`
	}
	status = env.do("GET", "/trees/"+tree.ID+"/export", token, nil, &export)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, export.Persons, 1)
}
