package mocks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

const (
	kidHeader            = "1"
	schemaListResponse   = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	schemaBulkResponse   = "urn:ietf:params:scim:api:messages:2.0:BulkResponse"
	schemaError          = "urn:ietf:params:scim:api:messages:2.0:Error"
	defaultMockTokenTTL  = time.Hour
	mockAdminPathPrefix  = "/admin/v1"
	mockTokenPath        = "/oauth2/v1/token"
	mockCreatedAppPrefix = "app-"
)

var filterTerm = regexp.MustCompile(`([\w.:]+) (eq|gt|lt|sw) "((?:[^"\\]|\\.)*)"`)

type mockUser struct {
	user  scim.User
	attrs map[string]string
}

type MockApp struct {
	ID           string
	Name         string
	DisplayName  string
	ClientSecret string
	Active       bool
}

// MockIdentityServer is an in-memory identity provider serving the token
// endpoint and the subset of the SCIM admin API used by the gateway.
// You must call Close afterward.
type MockIdentityServer struct {
	*httptest.Server

	clientID     string
	clientSecret string
	privateKey   *rsa.PrivateKey

	tokenRequests atomic.Int32

	mu       sync.Mutex
	tokenTTL time.Duration
	users    map[string]mockUser
	nextID   int
	apps     map[string]*MockApp
	groups   map[string][]string
	appRoles map[string][]string
	grants   []scim.Grant
	bulks    []scim.BulkRequest
	searches []url.Values
	requests []string
	failures map[string][]int
}

// NewMockIdentityServer starts a server accepting the given client credentials.
func NewMockIdentityServer(clientID, clientSecret string) (*MockIdentityServer, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	s := &MockIdentityServer{
		clientID:     clientID,
		clientSecret: clientSecret,
		privateKey:   privateKey,
		tokenTTL:     defaultMockTokenTTL,
		users:        map[string]mockUser{},
		apps:         map[string]*MockApp{},
		groups:       map[string][]string{},
		appRoles:     map[string][]string{},
		failures:     map[string][]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+mockTokenPath, s.handleToken)

	admin := http.NewServeMux()
	admin.HandleFunc("GET /Users", s.handleSearchUsers)
	admin.HandleFunc("POST /Bulk", s.handleBulk)
	admin.HandleFunc("GET /Apps", s.handleLookup(s.appIDs))
	admin.HandleFunc("POST /Apps", s.handleCreateApp)
	admin.HandleFunc("DELETE /Apps/{id}", s.handleDeleteApp)
	admin.HandleFunc("PUT /AppStatusChanger/{id}", s.handleAppStatus)
	admin.HandleFunc("GET /Groups", s.handleLookup(func(q url.Values) []string { return s.namedIDs(s.groups, q) }))
	admin.HandleFunc("GET /AppRoles", s.handleLookup(func(q url.Values) []string { return s.namedIDs(s.appRoles, q) }))
	admin.HandleFunc("POST /Grants", s.handleGrant)
	mux.Handle(mockAdminPathPrefix+"/", http.StripPrefix(mockAdminPathPrefix, s.authenticated(admin)))

	s.Server = httptest.NewServer(mux)
	return s, nil
}

// SetTokenTTL changes the lifetime of the tokens issued from now on.
func (s *MockIdentityServer) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// TokenRequests is the number of successful token requests served.
func (s *MockIdentityServer) TokenRequests() int {
	return int(s.tokenRequests.Load())
}

// GetToken signs an access token for subject.
func (s *MockIdentityServer) GetToken(subject string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    s.URL,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	token.Header["kid"] = kidHeader
	return token.SignedString(s.privateKey)
}

// AddUser stores u under its id, assigning one if it has none. attrs holds
// further filterable attributes such as the last login date.
func (s *MockIdentityServer) AddUser(u scim.User, attrs map[string]string) scim.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(u, attrs)
}

func (s *MockIdentityServer) addUserLocked(u scim.User, attrs map[string]string) scim.User {
	if u.ID == "" {
		s.nextID++
		u.ID = fmt.Sprintf("%08x", s.nextID)
	}
	all := map[string]string{scim.AttrID: u.ID, scim.AttrUserName: u.UserName}
	for k, v := range attrs {
		all[k] = v
	}
	s.users[u.ID] = mockUser{user: u, attrs: all}
	return u
}

// Users returns the stored users sorted by id.
func (s *MockIdentityServer) Users() []scim.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]scim.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.user)
	}
	slices.SortFunc(out, func(a, b scim.User) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *MockIdentityServer) AddApp(app MockApp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = &app
}

func (s *MockIdentityServer) App(id string) (MockApp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return MockApp{}, false
	}
	return *app, true
}

func (s *MockIdentityServer) AddGroup(displayName, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[displayName] = append(s.groups[displayName], id)
}

func (s *MockIdentityServer) AddAppRole(displayName, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appRoles[displayName] = append(s.appRoles[displayName], id)
}

func (s *MockIdentityServer) Grants() []scim.Grant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.grants)
}

// BulkRequests returns the bulk requests received, in arrival order.
func (s *MockIdentityServer) BulkRequests() []scim.BulkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bulks)
}

// Searches returns the query parameters of the user searches received.
func (s *MockIdentityServer) Searches() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.searches)
}

// Requests returns "METHOD /path" for every admin request received.
func (s *MockIdentityServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// FailNext makes the next admin requests matching method and path answer
// with the given statuses, one per request, before serving normally again.
func (s *MockIdentityServer) FailNext(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], statuses...)
}

func (s *MockIdentityServer) handleToken(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != s.clientID || secret != s.clientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_client",
			"error_description": "Client authentication failed.",
		})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	ttl := s.tokenTTL
	s.mu.Unlock()

	token, err := s.GetToken(id, ttl)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.tokenRequests.Add(1)

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
	})
}

func (s *MockIdentityServer) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return s.privateKey.Public(), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests = append(s.requests, key)
		var status int
		if queued := s.failures[key]; len(queued) > 0 {
			status, s.failures[key] = queued[0], queued[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *MockIdentityServer) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	terms, err := parseFilter(query.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count := 50
	if c := query.Get("count"); c != "" {
		if count, err = strconv.Atoi(c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
	}

	s.mu.Lock()
	s.searches = append(s.searches, query)
	var matches []scim.User
	for _, u := range s.users {
		if terms.match(u.attrs) {
			matches = append(matches, u.user)
		}
	}
	s.mu.Unlock()

	sortBy := query.Get("sortBy")
	if sortBy == "" {
		sortBy = scim.AttrID
	}
	slices.SortFunc(matches, func(a, b scim.User) int {
		if sortBy == scim.AttrUserName {
			return strings.Compare(a.UserName, b.UserName)
		}
		return strings.Compare(a.ID, b.ID)
	})

	page := matches
	if len(page) > count {
		page = page[:count]
	}
	writeJSON(w, http.StatusOK, scim.ListResponse[scim.User]{
		Schemas:      []string{schemaListResponse},
		TotalResults: len(matches),
		ItemsPerPage: len(page),
		StartIndex:   1,
		Resources:    page,
	})
}

type bulkResult struct {
	Method   scim.Method `json:"method"`
	BulkID   string      `json:"bulkId,omitempty"`
	Location string      `json:"location,omitempty"`
	Status   string      `json:"status"`
}

func (s *MockIdentityServer) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req scim.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulks = append(s.bulks, req)

	results := make([]bulkResult, 0, len(req.Operations))
	for _, op := range req.Operations {
		res := bulkResult{Method: op.Method, BulkID: op.BulkID}
		path, _, _ := strings.Cut(op.Path, "?")

		switch {
		case op.Method == scim.MethodDelete && strings.HasPrefix(path, "/Users/"):
			id := strings.TrimPrefix(path, "/Users/")
			if _, ok := s.users[id]; !ok {
				res.Status = strconv.Itoa(http.StatusNotFound)
				break
			}
			delete(s.users, id)
			res.Status = strconv.Itoa(http.StatusNoContent)
		case op.Method == scim.MethodPost && strings.TrimSuffix(path, "/") == "/Users":
			var u scim.User
			b, _ := json.Marshal(op.Data)
			if err := json.Unmarshal(b, &u); err != nil || u.UserName == "" {
				res.Status = strconv.Itoa(http.StatusBadRequest)
				break
			}
			u.ID = ""
			u = s.addUserLocked(u, nil)
			res.Location = s.URL + mockAdminPathPrefix + "/Users/" + u.ID
			res.Status = strconv.Itoa(http.StatusCreated)
		default:
			res.Status = strconv.Itoa(http.StatusNotImplemented)
		}
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schemas":    []string{schemaBulkResponse},
		"Operations": results,
	})
}

func (s *MockIdentityServer) handleLookup(ids func(url.Values) []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found := ids(r.URL.Query())
		resources := make([]map[string]string, 0, len(found))
		for _, id := range found {
			resources = append(resources, map[string]string{"id": id})
		}
		writeJSON(w, http.StatusOK, scim.ListResponse[map[string]string]{
			Schemas:      []string{schemaListResponse},
			TotalResults: len(found),
			Resources:    resources,
		})
	}
}

func (s *MockIdentityServer) appIDs(query url.Values) []string {
	terms, err := parseFilter(query.Get("filter"))
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, app := range s.apps {
		attrs := map[string]string{scim.AttrID: app.ID, scim.AttrName: app.Name, scim.AttrDisplayName: app.DisplayName}
		if terms.match(attrs) {
			ids = append(ids, app.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *MockIdentityServer) namedIDs(byName map[string][]string, query url.Values) []string {
	terms, err := parseFilter(query.Get("filter"))
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for name, named := range byName {
		if terms.match(map[string]string{scim.AttrDisplayName: name}) {
			ids = append(ids, named...)
		}
	}
	return ids
}

func (s *MockIdentityServer) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req scim.App
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	s.mu.Lock()
	s.nextID++
	app := &MockApp{
		ID:           fmt.Sprintf("%s%d", mockCreatedAppPrefix, s.nextID),
		Name:         fmt.Sprintf("client%d", s.nextID),
		DisplayName:  req.DisplayName,
		ClientSecret: fmt.Sprintf("secret%d", s.nextID),
	}
	s.apps[app.ID] = app
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, scim.App{
		Schemas:      []string{scim.SchemaApp},
		ID:           app.ID,
		Name:         app.Name,
		DisplayName:  app.DisplayName,
		ClientSecret: app.ClientSecret,
	})
}

func (s *MockIdentityServer) handleAppStatus(w http.ResponseWriter, r *http.Request) {
	var req scim.AppStatusChanger
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "app not found")
		return
	}
	app.Active = req.Active
	writeJSON(w, http.StatusOK, map[string]any{"id": app.ID, "active": app.Active})
}

func (s *MockIdentityServer) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	app, ok := s.apps[id]
	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "app not found")
	case app.Active:
		writeError(w, http.StatusBadRequest, "an active app cannot be deleted")
	default:
		delete(s.apps, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *MockIdentityServer) handleGrant(w http.ResponseWriter, r *http.Request) {
	var grant scim.Grant
	if err := json.NewDecoder(r.Body).Decode(&grant); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.grants = append(s.grants, grant)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, grant)
}

type filterTerms [][3]string

func parseFilter(filter string) (filterTerms, error) {
	var terms filterTerms
	for _, m := range filterTerm.FindAllStringSubmatch(filter, -1) {
		value := strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(m[3])
		terms = append(terms, [3]string{m[1], m[2], value})
	}
	if filter != "" && len(terms) == 0 {
		return nil, fmt.Errorf("unsupported filter %q", filter)
	}
	return terms, nil
}

func (terms filterTerms) match(attrs map[string]string) bool {
	for _, term := range terms {
		got, ok := attrs[term[0]]
		if !ok {
			return false
		}
		var matched bool
		switch term[1] {
		case "eq":
			matched = got == term[2]
		case "gt":
			matched = got > term[2]
		case "lt":
			matched = got < term[2]
		case "sw":
			matched = strings.HasPrefix(got, term[2])
		}
		if !matched {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", scim.ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{
		"schemas": []string{schemaError},
		"status":  strconv.Itoa(status),
		"detail":  detail,
	})
}
