package remotefake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-accounting-sync/credentials"
)

const (
	ClientID     = "fake-client"
	ClientSecret = "fake-secret"
	RealmID      = "realm-1"
	TokenPath    = "/oauth2/v1/tokens/bearer"

	accessTokenTTL  = 3600
	refreshTokenTTL = 8726400
)

// entityNames maps URL path segments to response envelope keys.
var entityNames = map[string]string{
	"customer": "Customer",
	"item":     "Item",
	"invoice":  "Invoice",
	"estimate": "Estimate",
	"account":  "Account",
}

var idPrefixes = map[string]string{
	"Customer": "Q-",
	"Item":     "I-",
	"Invoice":  "D-",
	"Estimate": "E-",
	"Account":  "A-",
}

var queryPattern = regexp.MustCompile(`(?i)^select \* from (\w+)(?: where (\w+) = '((?:[^']|\\')*)')?`)

// Rule injects a failure or delay for matching data calls.
type Rule struct {
	Method string // empty matches any
	Entity string // envelope name, e.g. "Customer"; empty matches any
	Match  func(body map[string]any) bool
	Status int
	Body   string
	Delay  time.Duration
	Times  int // 0 means unlimited
}

// Request is one data call received by the fake.
type Request struct {
	Method string
	Entity string
	ID     string
	Query  string
	Body   map[string]any
	Token  string
}

// Server is an in-process stand-in for the accounting backend and its OAuth2
// token endpoint.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	records       map[string]map[string]map[string]any // entity -> id -> record
	nextID        map[string]int
	accessTokens  map[string]bool
	refreshToken  string
	tokenSerial   int
	refreshCalls  int
	refreshDelay  time.Duration
	rejectRefresh bool
	rules         []*Rule
	requests      []Request
}

func NewServer() *Server {
	s := &Server{
		records:      make(map[string]map[string]map[string]any),
		nextID:       make(map[string]int),
		accessTokens: map[string]bool{"access-0": true},
		refreshToken: "refresh-0",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+TokenPath, s.handleToken)
	mux.HandleFunc("GET /v3/company/{realm}/query", s.handleQuery)
	mux.HandleFunc("GET /v3/company/{realm}/{entity}/{id}", s.handleGet)
	mux.HandleFunc("POST /v3/company/{realm}/{entity}", s.handlePost)
	s.Server = httptest.NewServer(mux)
	return s
}

// TokenURL is the token endpoint to configure the refresher with.
func (s *Server) TokenURL() string {
	return s.URL + TokenPath
}

// Credential returns a credential holding the fake's current token pair,
// with the access token expiring at accessExpiresAt.
func (s *Server) Credential(accessExpiresAt, refreshExpiresAt time.Time) *credentials.RemoteCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	var access string
	for t := range s.accessTokens {
		access = t
	}
	return &credentials.RemoteCredential{
		RealmID:               RealmID,
		AccessToken:           access,
		RefreshToken:          s.refreshToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshTokenExpiresAt: refreshExpiresAt,
	}
}

// RevokeAccessTokens makes every issued access token answer 401.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]bool)
}

// RejectRefresh makes the token endpoint answer invalid_grant.
func (s *Server) RejectRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRefresh = true
}

// SetRefreshDelay slows the token endpoint down so concurrent callers overlap.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) AddRule(r *Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

// Seed stores a record directly and returns its id.
func (s *Server) Seed(entity string, record map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(entity, record)
}

// Record returns a copy of a stored record.
func (s *Server) Record(entity, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entity][id]
	if !ok {
		return nil, false
	}
	return clone(rec), true
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls counts data calls by method and entity; an empty entity matches all.
func (s *Server) Calls(method, entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && (entity == "" || r.Entity == entity) {
			n++
		}
	}
	return n
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.refreshCalls++
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectRefresh || r.PostForm.Get("refresh_token") != s.refreshToken {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	s.tokenSerial++
	access := "access-" + strconv.Itoa(s.tokenSerial)
	s.refreshToken = "refresh-" + strconv.Itoa(s.tokenSerial)
	// The previous pair is invalidated by rotation.
	s.accessTokens = map[string]bool{access: true}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":                 "bearer",
		"access_token":               access,
		"refresh_token":              s.refreshToken,
		"expires_in":                 accessTokenTTL,
		"x_refresh_token_expires_in": refreshTokenTTL,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if !s.authorize(w, r, Request{Method: http.MethodGet, Query: q}) {
		return
	}
	m := queryPattern.FindStringSubmatch(strings.TrimSpace(q))
	if m == nil {
		writeFault(w, http.StatusBadRequest, "QueryParserError", "Error parsing query")
		return
	}
	entity := m[1]
	for k, v := range entityNames {
		if strings.EqualFold(k, entity) {
			entity = v
		}
	}

	s.mu.Lock()
	rows := make([]map[string]any, 0)
	for _, rec := range s.records[entity] {
		if m[2] == "" || fmt.Sprint(rec[m[2]]) == strings.ReplaceAll(m[3], `\'`, `'`) {
			rows = append(rows, clone(rec))
		}
	}
	s.mu.Unlock()

	resp := map[string]any{}
	if len(rows) > 0 {
		resp[entity] = rows
	}
	writeJSON(w, http.StatusOK, map[string]any{"QueryResponse": resp})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entity, ok := entityNames[r.PathValue("entity")]
	req := Request{Method: http.MethodGet, Entity: entity, ID: r.PathValue("id")}
	if !s.authorize(w, r, req) {
		return
	}
	if !ok {
		writeFault(w, http.StatusBadRequest, "Unsupported Operation", "unknown entity")
		return
	}
	s.mu.Lock()
	rec, found := s.records[entity][req.ID]
	if found {
		rec = clone(rec)
	}
	s.mu.Unlock()
	if !found {
		writeFault(w, http.StatusBadRequest, "Object Not Found", "Object Not Found : Something you're trying to use has been made inactive or is not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{entity: rec, "time": time.Now().Format(time.RFC3339)})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	entity, ok := entityNames[r.PathValue("entity")]
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, http.StatusBadRequest, "Request has invalid or unsupported property", err.Error())
		return
	}
	req := Request{Method: http.MethodPost, Entity: entity, Body: body}
	if id, _ := body["Id"].(string); id != "" {
		req.ID = id
	}
	if !s.authorize(w, r, req) {
		return
	}
	if !ok {
		writeFault(w, http.StatusBadRequest, "Unsupported Operation", "unknown entity")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		id := s.create(entity, body)
		writeJSON(w, http.StatusOK, map[string]any{entity: clone(s.records[entity][id]), "time": time.Now().Format(time.RFC3339)})
		return
	}

	current, found := s.records[entity][req.ID]
	if !found {
		writeFault(w, http.StatusBadRequest, "Object Not Found", "Object Not Found")
		return
	}
	if body["SyncToken"] != current["SyncToken"] {
		writeFault(w, http.StatusBadRequest, "Stale Object Error", "You and another user were working on the same thing.")
		return
	}
	next := body
	if sparse, _ := body["sparse"].(bool); sparse {
		next = clone(current)
		for k, v := range body {
			if v == nil {
				delete(next, k)
				continue
			}
			next[k] = v
		}
	}
	delete(next, "sparse")
	n, _ := strconv.Atoi(fmt.Sprint(current["SyncToken"]))
	next["Id"] = req.ID
	next["SyncToken"] = strconv.Itoa(n + 1)
	s.records[entity][req.ID] = next
	writeJSON(w, http.StatusOK, map[string]any{entity: clone(next), "time": time.Now().Format(time.RFC3339)})
}

// authorize records the request, applies injected rules and checks the bearer token.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, req Request) bool {
	req.Token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	s.requests = append(s.requests, req)
	valid := s.accessTokens[req.Token]
	rule := s.matchRule(req)
	s.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"fault": map[string]any{
				"error": []map[string]any{{"message": "message=AuthenticationFailed; errorCode=003200; statusCode=401", "detail": "Token expired", "code": "3200"}},
				"type":  "AUTHENTICATION",
			},
		})
		return false
	}
	if rule != nil {
		if rule.Delay > 0 {
			select {
			case <-time.After(rule.Delay):
			case <-r.Context().Done():
				return false
			}
		}
		if rule.Status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rule.Status)
			_, _ = w.Write([]byte(rule.Body))
			return false
		}
	}
	return true
}

func (s *Server) matchRule(req Request) *Rule {
	for _, rule := range s.rules {
		if rule.Method != "" && rule.Method != req.Method {
			continue
		}
		if rule.Entity != "" && rule.Entity != req.Entity {
			continue
		}
		if rule.Match != nil && (req.Body == nil || !rule.Match(req.Body)) {
			continue
		}
		if rule.Times < 0 {
			continue
		}
		if rule.Times > 0 {
			rule.Times--
			if rule.Times == 0 {
				rule.Times = -1
			}
		}
		return rule
	}
	return nil
}

func (s *Server) create(entity string, body map[string]any) string {
	if s.records[entity] == nil {
		s.records[entity] = make(map[string]map[string]any)
	}
	s.nextID[entity]++
	id := idPrefixes[entity] + strconv.Itoa(s.nextID[entity])
	rec := clone(body)
	rec["Id"] = id
	rec["SyncToken"] = "0"
	s.records[entity][id] = rec
	return id
}

func clone(m map[string]any) map[string]any {
	raw, _ := json.Marshal(m)
	out := make(map[string]any)
	_ = json.Unmarshal(raw, &out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFault(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, map[string]any{
		"Fault": map[string]any{
			"Error": []map[string]any{{"Message": message, "Detail": detail, "code": "6000"}},
			"type":  "ValidationFault",
		},
	})
}
