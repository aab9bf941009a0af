// Package mockgithub serves a small in-memory GitHub for tests: rate limit, user repositories,
// recursive trees, commit listings, commit details and raw content. Every request is recorded.
package mockgithub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Change is one entry of a commit's file list.
type Change struct {
	Filename string
	Status   string
}

// Commit is a historical revision. Files is the complete tree at that commit.
type Commit struct {
	SHA   string
	Date  time.Time
	Files map[string]string
	// Changes is the file level diff. Nil simulates a commit without file list (large or merge commits).
	Changes []Change
}

// TreeSHA is the tree identifier the commit detail reports.
func (c Commit) TreeSHA() string {
	return "tree-" + c.SHA
}

// Repo is a repository. Commits are ordered newest first.
type Repo struct {
	FullName string
	Files    map[string]string
	Commits  []Commit
	// Empty makes tree listings answer 409 like GitHub does for empty repositories.
	Empty bool
}

// RecordedRequest captures details of an HTTP request received by the mock server.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Headers  http.Header
}

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	repos         map[string]*Repo
	users         map[string][]string
	rawStatus     map[string]int
	rateRemaining int
	requests      []RecordedRequest
}

// New starts a server and closes it when the test ends.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		repos:         map[string]*Repo{},
		users:         map[string][]string{},
		rawStatus:     map[string]int{},
		rateRemaining: 5000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rate_limit", s.handleRateLimit)
	mux.HandleFunc("GET /api/users/{user}/repos", s.handleUserRepos)
	mux.HandleFunc("GET /api/repos/{owner}/{name}/git/trees/{ref}", s.handleTree)
	mux.HandleFunc("GET /api/repos/{owner}/{name}/commits", s.handleCommits)
	mux.HandleFunc("GET /api/repos/{owner}/{name}/commits/{sha}", s.handleCommit)
	mux.HandleFunc("GET /raw/{owner}/{name}/{ref}/{path...}", s.handleRaw)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Headers:  r.Header.Clone(),
		})
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) APIURL() string {
	return s.URL + "/api"
}

func (s *Server) RawURL() string {
	return s.URL + "/raw"
}

func (s *Server) AddRepo(repo Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := repo
	s.repos[repo.FullName] = &r
}

// AddUser registers the repositories listed for user, in listing order.
func (s *Server) AddUser(user string, repos ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = append(s.users[user], repos...)
}

// FailRaw makes every raw request for path answer status.
func (s *Server) FailRaw(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawStatus[path] = status
}

func (s *Server) SetRateRemaining(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateRemaining = remaining
}

func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest{}, s.requests...)
}

// CountRequests returns how many requests hit a path starting with prefix.
func (s *Server) CountRequests(prefix string) int {
	count := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			count++
		}
	}
	return count
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	remaining := s.rateRemaining
	s.mu.Unlock()

	reset := time.Now().Add(time.Hour).Unix()
	core := map[string]any{"limit": 5000, "remaining": remaining, "reset": reset, "used": 5000 - remaining}
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": map[string]any{"core": core},
		"rate":      core,
	})
}

func (s *Server) handleUserRepos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	names := append([]string{}, s.users[r.PathValue("user")]...)
	s.mu.Unlock()

	page, perPage := pagination(r)
	start := min((page-1)*perPage, len(names))
	end := min(start+perPage, len(names))

	if end < len(names) {
		next := fmt.Sprintf("http://%s%s?page=%d&per_page=%d", r.Host, r.URL.Path, page+1, perPage)
		w.Header().Set("Link", `<`+next+`>; rel="next"`)
	}

	repos := []map[string]any{}
	for _, full := range names[start:end] {
		owner, name, _ := strings.Cut(full, "/")
		repos = append(repos, map[string]any{
			"name":      name,
			"full_name": full,
			"html_url":  "https://github.com/" + full,
			"owner":     map[string]any{"login": owner},
		})
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	if repo.Empty {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "Git Repository is empty."})
		return
	}

	files, ok := repo.filesAt(r.PathValue("ref"), true)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	tree := []map[string]any{}
	dirs := map[string]bool{}
	for _, p := range paths {
		if dir, _, found := strings.Cut(p, "/"); found && !dirs[dir] {
			dirs[dir] = true
			tree = append(tree, map[string]any{"path": dir, "type": "tree", "sha": "dir-" + dir})
		}
		tree = append(tree, map[string]any{"path": p, "type": "blob", "sha": "blob-" + p})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sha": r.PathValue("ref"), "tree": tree, "truncated": false})
}

func (s *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}

	page, perPage := pagination(r)
	start := min((page-1)*perPage, len(repo.Commits))
	end := min(start+perPage, len(repo.Commits))

	commits := []map[string]any{}
	for _, c := range repo.Commits[start:end] {
		commits = append(commits, map[string]any{
			"sha":      c.SHA,
			"html_url": "https://github.com/" + repo.FullName + "/commit/" + c.SHA,
			"commit": map[string]any{
				"author": map[string]any{"date": c.Date.UTC().Format(time.RFC3339)},
			},
		})
	}
	writeJSON(w, http.StatusOK, commits)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}

	for _, c := range repo.Commits {
		if c.SHA != r.PathValue("sha") {
			continue
		}

		files := []map[string]any{}
		for _, change := range c.Changes {
			files = append(files, map[string]any{"filename": change.Filename, "status": change.Status})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sha":      c.SHA,
			"html_url": "https://github.com/" + repo.FullName + "/commit/" + c.SHA,
			"commit": map[string]any{
				"tree":   map[string]any{"sha": c.TreeSHA()},
				"author": map[string]any{"date": c.Date.UTC().Format(time.RFC3339)},
			},
			"files": files,
		})
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "No commit found for SHA"})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	s.mu.Lock()
	status, failing := s.rawStatus[path]
	s.mu.Unlock()
	if failing {
		w.WriteHeader(status)
		return
	}

	repo, ok := s.repo(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	files, ok := repo.filesAt(r.PathValue("ref"), false)
	content, exists := files[path]
	if !ok || !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, bytes.NewBufferString(content))
}

func (s *Server) repo(r *http.Request) (Repo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[r.PathValue("owner")+"/"+r.PathValue("name")]
	if !ok {
		return Repo{}, false
	}
	return *repo, true
}

// filesAt resolves HEAD, a commit SHA or, for tree listings, a commit's tree SHA.
func (r Repo) filesAt(ref string, allowTreeSHA bool) (map[string]string, bool) {
	if ref == "HEAD" {
		return r.Files, true
	}
	for _, c := range r.Commits {
		if c.SHA == ref || (allowTreeSHA && c.TreeSHA() == ref) {
			return c.Files, true
		}
	}
	return nil, false
}

func pagination(r *http.Request) (page int, perPage int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err = strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 30
	}
	return page, perPage
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
