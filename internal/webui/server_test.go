package webui_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/temirov/revscope/internal/assemble"
	"github.com/temirov/revscope/internal/cost"
	"github.com/temirov/revscope/internal/ignore"
	"github.com/temirov/revscope/internal/selection"
	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
	"github.com/temirov/revscope/internal/webui"
)

type stubChangeLister struct {
	entries []types.ChangeEntry
}

func (lister *stubChangeLister) ListChangedPaths(_ context.Context, _ string, _ string) []types.ChangeEntry {
	return lister.entries
}

type stubDocumentBuilder struct{}

func (builder *stubDocumentBuilder) BuildDocument(_ context.Context, instructions string) (assemble.Document, error) {
	return assemble.Document{TargetRef: "feature", SourceRef: "main", Instructions: instructions}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *selection.Coordinator) {
	t.Helper()
	rootDirectory := t.TempDir()
	for relativePath, content := range map[string]string{"src/a.ts": "aaaa", "docs/guide.md": "gg"} {
		absolutePath := filepath.Join(rootDirectory, filepath.FromSlash(relativePath))
		if makeError := os.MkdirAll(filepath.Dir(absolutePath), 0o755); makeError != nil {
			t.Fatalf("create fixture directory: %v", makeError)
		}
		if writeError := os.WriteFile(absolutePath, []byte(content), 0o644); writeError != nil {
			t.Fatalf("write fixture file: %v", writeError)
		}
	}
	estimator := cost.NewEstimator(nil)
	costSource := tree.RootedCostSource{Root: rootDirectory, Source: estimator}
	ruleSet := ignore.Compile(nil)
	coordinator := selection.NewCoordinator(
		&stubChangeLister{entries: []types.ChangeEntry{{Path: "src/a.ts", Status: types.StatusModified}}},
		tree.NewChangeSetTree(ruleSet, costSource),
		tree.NewProjectTree(rootDirectory, ruleSet, costSource),
		estimator,
	)
	server := webui.NewServer("127.0.0.1:0", coordinator, &stubDocumentBuilder{}, zap.NewNop())
	testServer := httptest.NewServer(server.Handler())
	t.Cleanup(testServer.Close)
	return testServer, coordinator
}

func TestChangesTreePayload(t *testing.T) {
	testServer, coordinator := newTestServer(t)
	coordinator.Reload(context.Background(), "feature", "main")

	response, requestError := http.Get(testServer.URL + "/api/tree/changes")
	if requestError != nil {
		t.Fatalf("request failed: %v", requestError)
	}
	defer response.Body.Close()

	var payloads []map[string]any
	if decodeError := json.NewDecoder(response.Body).Decode(&payloads); decodeError != nil {
		t.Fatalf("decode payload: %v", decodeError)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected one root folder, got %d", len(payloads))
	}
	if payloads[0]["path"] != "src" || payloads[0]["kind"] != "folder" {
		t.Fatalf("unexpected root payload: %+v", payloads[0])
	}
	children, hasChildren := payloads[0]["children"].([]any)
	if !hasChildren || len(children) != 1 {
		t.Fatalf("expected nested file child, got %+v", payloads[0])
	}
	fileChild := children[0].(map[string]any)
	if fileChild["path"] != "src/a.ts" || fileChild["status"] != "modified" || fileChild["checked"] != true {
		t.Fatalf("unexpected file payload: %+v", fileChild)
	}
}

func TestProjectTreeListsOneLevel(t *testing.T) {
	testServer, _ := newTestServer(t)

	response, requestError := http.Get(testServer.URL + "/api/tree/project")
	if requestError != nil {
		t.Fatalf("request failed: %v", requestError)
	}
	defer response.Body.Close()

	var payloads []map[string]any
	if decodeError := json.NewDecoder(response.Body).Decode(&payloads); decodeError != nil {
		t.Fatalf("decode payload: %v", decodeError)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected docs and src folders at root, got %+v", payloads)
	}
	for _, payload := range payloads {
		if payload["kind"] != "folder" || payload["hasChildren"] != true {
			t.Fatalf("expected lazily expandable folder, got %+v", payload)
		}
		if _, nested := payload["children"]; nested {
			t.Fatalf("expected one level only, got nested children: %+v", payload)
		}
	}
}

func TestBatchEndpointPushesOneWebsocketFrame(t *testing.T) {
	testServer, _ := newTestServer(t)

	websocketURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	connection, _, dialError := websocket.DefaultDialer.Dial(websocketURL, nil)
	if dialError != nil {
		t.Fatalf("websocket dial failed: %v", dialError)
	}
	defer connection.Close()
	// The broadcast fans out from the mutating goroutine; give the
	// registration a moment to settle before mutating.
	time.Sleep(50 * time.Millisecond)

	batchBody, _ := json.Marshal(map[string]any{
		"origin": "project",
		"changes": []map[string]any{
			{"path": "docs/guide.md", "kind": "file", "checked": true},
		},
	})
	response, requestError := http.Post(testServer.URL+"/api/batch", "application/json", bytes.NewReader(batchBody))
	if requestError != nil {
		t.Fatalf("batch request failed: %v", requestError)
	}
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.StatusCode)
	}

	if deadlineError := connection.SetReadDeadline(time.Now().Add(2 * time.Second)); deadlineError != nil {
		t.Fatalf("set read deadline: %v", deadlineError)
	}
	var notification types.RefreshNotification
	if readError := connection.ReadJSON(&notification); readError != nil {
		t.Fatalf("expected one frame after the batch, got error: %v", readError)
	}
	if notification.Origin != types.OriginProjectTree || notification.Mutation != types.MutationBatch {
		t.Fatalf("unexpected notification %+v", notification)
	}
	if notification.CheckedFileCount != 1 {
		t.Fatalf("expected one checked file, got %d", notification.CheckedFileCount)
	}
}

func TestAssembleEndpointRendersDocument(t *testing.T) {
	testServer, _ := newTestServer(t)

	assembleBody, _ := json.Marshal(map[string]string{"instructions": "look closely"})
	response, requestError := http.Post(testServer.URL+"/api/assemble", "application/json", bytes.NewReader(assembleBody))
	if requestError != nil {
		t.Fatalf("assemble request failed: %v", requestError)
	}
	defer response.Body.Close()

	var rendered bytes.Buffer
	if _, readError := rendered.ReadFrom(response.Body); readError != nil {
		t.Fatalf("read response: %v", readError)
	}
	if !strings.Contains(rendered.String(), "<review_context") || !strings.Contains(rendered.String(), "look closely") {
		t.Fatalf("unexpected document: %s", rendered.String())
	}
}

func TestMethodGuards(t *testing.T) {
	testServer, _ := newTestServer(t)

	response, requestError := http.Get(testServer.URL + "/api/batch")
	if requestError != nil {
		t.Fatalf("request failed: %v", requestError)
	}
	if response.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET batch, got %d", response.StatusCode)
	}
}
