package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glasserstudy/glasser/internal/config"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/service"
)

// fakeAPI answers GraphQL requests by operation name.
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
	vars      map[string]map[string]any
	auth      []string
}

func newFakeAPI(t *testing.T, responses map[string]string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{responses: responses, calls: map[string]int{}, vars: map[string]map[string]any{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OperationName string         `json:"operationName"`
			Variables     map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		api.mu.Lock()
		api.calls[req.OperationName]++
		api.vars[req.OperationName] = req.Variables
		api.auth = append(api.auth, r.Header.Get("Authorization"))
		body, ok := api.responses[req.OperationName]
		api.mu.Unlock()
		if !ok {
			t.Errorf("unexpected operation %s", req.OperationName)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return api, server
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// setupEnv points the CLI at server from an empty workspace.
func setupEnv(t *testing.T, server *httptest.Server, token string) string {
	t.Helper()
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir() error: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })

	for _, key := range []string{
		config.EnvNotificationURL, config.EnvNotificationWSURL, config.EnvPushTransport,
		config.EnvLocale, config.EnvPollIntervalMS, config.EnvNotificationLimit,
	} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvAPIURL, server.URL)
	t.Setenv(config.EnvToken, token)
	t.Setenv(config.EnvSessionFile, filepath.Join(tmpDir, "session.json"))
	return tmpDir
}

func resetFlags() {
	configPath, jsonOutput = "", false
	loginEmail, signUpName, signUpGoal = "", "", ""
	chatsSearch, chatSaveID, chatSaveName, chatSaveDesc, chatSaveMembers = "", "", "", "", nil
	chatInviteAccept, chatInviteReject = false, false
	goalSaveID, goalSaveName, goalSaveDesc, goalSaveTasks = "", "", "", nil
	groupsSearch, groupSaveID, groupSaveName, groupSaveDesc, groupSaveMember = "", "", "", "", nil
	postsFilter = service.PostFilter{SearchFilter: service.SearchFilterAll}
	postSaveID, postSaveTitle, postSaveSubject, postSaveDesc = "", "", "", ""
	postSaveTags, postSaveMaterials = nil, nil
	commentDelete, reportReason, reportDetails, reportCommentID = "", "", "", ""
	notificationsWatch = false
	profileName, profileGoal, profileChangePassword = "", "", false
}

// run executes the CLI and returns stdout, the printed notices and the error.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	setBoard(nil)

	var out, errOut, notices bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := Execute()
	PrintNotifications(&notices)
	return out.String(), notices.String(), err
}

func TestGoalsList(t *testing.T) {
	_, server := newFakeAPI(t, map[string]string{
		"MyGoals": `{"data":{"myGoals":[{"id":"g1","name":"Algebra","tasks":[
			{"name":"Vectors","completed":true},{"name":"Matrices","completed":false}]}]}}`,
	})
	setupEnv(t, server, "tok")

	out, _, err := run(t, "", "goals", "list")
	if err != nil {
		t.Fatalf("goals list error: %v", err)
	}
	for _, want := range []string{"g1  Algebra  50%", "0 [x] Vectors", "1 [ ] Matrices"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGoalsList_JSON(t *testing.T) {
	_, server := newFakeAPI(t, map[string]string{
		"MyGoals": `{"data":{"myGoals":[{"id":"g1","name":"Algebra","tasks":[]}]}}`,
	})
	setupEnv(t, server, "tok")

	out, _, err := run(t, "", "goals", "list", "--json")
	if err != nil {
		t.Fatalf("goals list error: %v", err)
	}
	var goals []model.Goal
	if err := json.Unmarshal([]byte(out), &goals); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(goals) != 1 || goals[0].ID != "g1" {
		t.Errorf("goals = %+v", goals)
	}
}

func TestChatsSave_ValidationIsReported(t *testing.T) {
	api, server := newFakeAPI(t, map[string]string{})
	setupEnv(t, server, "tok")

	_, notices, err := run(t, "", "chats", "save", "--name", "Calculus")
	if !errors.Is(err, ErrReported) {
		t.Fatalf("err = %v, want ErrReported", err)
	}
	if !strings.Contains(notices, "Fill in all required fields") {
		t.Errorf("notices = %q", notices)
	}
	if api.count("SaveChat") != 0 {
		t.Error("invalid chat must not reach the backend")
	}
}

func TestSignedOutCommandsAskForLogin(t *testing.T) {
	api, server := newFakeAPI(t, map[string]string{})
	setupEnv(t, server, "")

	_, notices, err := run(t, "", "whoami")
	if !errors.Is(err, ErrReported) {
		t.Fatalf("err = %v, want ErrReported", err)
	}
	if !strings.Contains(notices, "glasser login") {
		t.Errorf("notices = %q", notices)
	}
	if api.count("Me") != 0 {
		t.Error("no request should be made without a session")
	}
}

func TestLoginAndLogout(t *testing.T) {
	api, server := newFakeAPI(t, map[string]string{
		"Login": `{"data":{"login":{"token":"session-token"}}}`,
		"Me":    `{"data":{"me":{"id":"u1","name":"Ana","email":"ana@example.com"}}}`,
	})
	tmpDir := setupEnv(t, server, "")

	_, notices, err := run(t, "secret12\n", "login", "ana@example.com")
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if !strings.Contains(notices, "Logged in successfully") {
		t.Errorf("notices = %q", notices)
	}
	data, err := os.ReadFile(filepath.Join(tmpDir, "session.json"))
	if err != nil || !strings.Contains(string(data), "session-token") {
		t.Fatalf("session file = %q, %v", data, err)
	}

	out, _, err := run(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	if !strings.Contains(out, "Ana <ana@example.com>") {
		t.Errorf("whoami output = %q", out)
	}
	api.mu.Lock()
	lastAuth := api.auth[len(api.auth)-1]
	api.mu.Unlock()
	if lastAuth != "session-token" {
		t.Errorf("Authorization = %q, want the stored token", lastAuth)
	}

	if _, _, err := run(t, "", "logout"); err != nil {
		t.Fatalf("logout error: %v", err)
	}
	if _, _, err := run(t, "", "whoami"); !errors.Is(err, ErrReported) {
		t.Errorf("whoami after logout err = %v, want ErrReported", err)
	}
}

func TestNotificationsReadAll(t *testing.T) {
	api, server := newFakeAPI(t, map[string]string{
		"MarkAllNotificationsRead": `{"data":{"markAllNotificationsAsRead":true}}`,
	})
	setupEnv(t, server, "tok")

	_, notices, err := run(t, "", "notifications", "read-all")
	if err != nil {
		t.Fatalf("read-all error: %v", err)
	}
	if api.count("MarkAllNotificationsRead") != 1 {
		t.Errorf("MarkAllNotificationsRead called %d times", api.count("MarkAllNotificationsRead"))
	}
	if !strings.Contains(notices, "All notifications marked as read") {
		t.Errorf("notices = %q", notices)
	}
}

func TestNotificationsList_UsesLimit(t *testing.T) {
	api, server := newFakeAPI(t, map[string]string{
		"MyNotifications": `{"data":{"myNotifications":[
			{"id":"n2","message":"New comment","type":"info","read":false},
			{"id":"n1","message":"Post removed","type":"warning","read":true}]}}`,
	})
	setupEnv(t, server, "tok")
	t.Setenv(config.EnvNotificationLimit, "2")

	out, _, err := run(t, "", "notifications", "--json")
	if err != nil {
		t.Fatalf("notifications error: %v", err)
	}
	var res NotificationsResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Unread != 1 || len(res.Notifications) != 2 {
		t.Errorf("result = %+v", res)
	}
	api.mu.Lock()
	limit := api.vars["MyNotifications"]["limit"]
	api.mu.Unlock()
	if limit != float64(2) {
		t.Errorf("limit = %v, want 2", limit)
	}
}

func TestSessionExpiredMidCommand(t *testing.T) {
	_, server := newFakeAPI(t, map[string]string{
		"MyGoals": `{"errors":[{"message":"jwt expired","extensions":{"code":"UNAUTHENTICATED"}}]}`,
	})
	tmpDir := setupEnv(t, server, "")
	if err := os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte(`{"token":"old"}`), 0600); err != nil {
		t.Fatal(err)
	}

	_, notices, err := run(t, "", "goals", "list")
	if !errors.Is(err, ErrReported) {
		t.Fatalf("err = %v, want ErrReported", err)
	}
	if strings.Count(notices, "Your session has expired") != 1 {
		t.Errorf("notices = %q, want one expiry notice", notices)
	}
	data, _ := os.ReadFile(filepath.Join(tmpDir, "session.json"))
	if strings.Contains(string(data), "old") {
		t.Errorf("session file still holds the rejected token: %s", data)
	}
}

func TestParseTasksAndMaterials(t *testing.T) {
	tasks := parseTasks([]string{"Vectors|https://example.com/v", " Matrices "})
	want := []model.Task{{Name: "Vectors", Link: "https://example.com/v"}, {Name: "Matrices"}}
	if len(tasks) != 2 || tasks[0] != want[0] || tasks[1] != want[1] {
		t.Errorf("parseTasks = %+v", tasks)
	}

	materials := parseMaterials([]string{"Notes|https://example.com/n.pdf|pdf", "Link only"})
	if materials[0] != (model.Material{Name: "Notes", Link: "https://example.com/n.pdf", Type: "pdf"}) {
		t.Errorf("materials[0] = %+v", materials[0])
	}
	if materials[1] != (model.Material{Name: "Link only"}) {
		t.Errorf("materials[1] = %+v", materials[1])
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ts   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "30s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-72 * time.Hour), "3d ago"},
		{now.Add(time.Minute), "0s ago"},
		{time.Time{}, ""},
	}
	for _, tt := range tests {
		if got := formatTimeAgo(tt.ts, now); got != tt.want {
			t.Errorf("formatTimeAgo(%v) = %q, want %q", tt.ts, got, tt.want)
		}
	}
	if got := formatTimeUntil(now.Add(90*time.Minute), now); got != "in 1h" {
		t.Errorf("formatTimeUntil = %q, want in 1h", got)
	}
}

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	r := bytes.NewReader(png)
	ct, err := detectContentType(r, "avatar.bin")
	if err != nil {
		t.Fatalf("detectContentType error: %v", err)
	}
	if ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	if pos, _ := r.Seek(0, io.SeekCurrent); pos != 0 {
		t.Errorf("reader not rewound, at %d", pos)
	}
}
