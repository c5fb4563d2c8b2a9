// Package webui is the host surface of the selection engine: an HTTP server
// rendering both checkbox trees, accepting checkbox batches, and pushing one
// websocket frame per completed mutation to every connected client.
package webui

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/temirov/revscope/internal/assemble"
	"github.com/temirov/revscope/internal/cost"
	"github.com/temirov/revscope/internal/selection"
	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
)

//go:embed page.html
var pageMarkup string

const (
	indexRoutePath     = "/"
	changesRoutePath   = "/api/tree/changes"
	projectRoutePath   = "/api/tree/project"
	batchRoutePath     = "/api/batch"
	selectAllRoutePath = "/api/select-all"
	reloadRoutePath    = "/api/reload"
	assembleRoutePath  = "/api/assemble"
	websocketRoutePath = "/ws"

	folderPathQueryName = "path"
	shutdownGracePeriod = 5 * time.Second

	methodNotAllowedMessage = "method not allowed"
	malformedRequestMessage = "malformed request body"
)

// DocumentBuilder renders the current selection into the final artifact.
type DocumentBuilder interface {
	BuildDocument(ctx context.Context, instructions string) (assemble.Document, error)
}

// nodePayload is the JSON shape of one tree node sent to the browser.
type nodePayload struct {
	Path        types.PathEntry    `json:"path"`
	Name        string             `json:"name"`
	Kind        types.NodeKind     `json:"kind"`
	Status      types.ChangeStatus `json:"status,omitempty"`
	Checked     bool               `json:"checked"`
	Locked      bool               `json:"locked"`
	Display     types.DisplayState `json:"display"`
	Cost        int                `json:"cost"`
	CostLabel   string             `json:"costLabel"`
	Icon        string             `json:"icon,omitempty"`
	IconColor   string             `json:"iconColor,omitempty"`
	HasChildren bool               `json:"hasChildren,omitempty"`
	Children    []nodePayload      `json:"children,omitempty"`
}

// Server hosts the checkbox trees over HTTP and websocket.
type Server struct {
	listenAddress string
	coordinator   *selection.Coordinator
	builder       DocumentBuilder
	logger        *zap.Logger

	pageTemplate *template.Template
	upgrader     websocket.Upgrader

	clientsMutex sync.RWMutex
	clients      map[*websocket.Conn]struct{}
}

// NewServer wires the server to the coordinator and registers it as a
// refresh listener so every completed mutation reaches connected clients.
func NewServer(listenAddress string, coordinator *selection.Coordinator, builder DocumentBuilder, logger *zap.Logger) *Server {
	server := &Server{
		listenAddress: listenAddress,
		coordinator:   coordinator,
		builder:       builder,
		logger:        logger,
		pageTemplate:  template.Must(template.New("page").Parse(pageMarkup)),
		clients:       make(map[*websocket.Conn]struct{}),
	}
	coordinator.AddRefreshListener(server.broadcast)
	return server
}

// Handler returns the route multiplexer, exposed for tests.
func (server *Server) Handler() http.Handler {
	multiplexer := http.NewServeMux()
	multiplexer.HandleFunc(indexRoutePath, server.handleIndex)
	multiplexer.HandleFunc(changesRoutePath, server.handleChangesTree)
	multiplexer.HandleFunc(projectRoutePath, server.handleProjectTree)
	multiplexer.HandleFunc(batchRoutePath, server.handleBatch)
	multiplexer.HandleFunc(selectAllRoutePath, server.handleSelectAll)
	multiplexer.HandleFunc(reloadRoutePath, server.handleReload)
	multiplexer.HandleFunc(assembleRoutePath, server.handleAssemble)
	multiplexer.HandleFunc(websocketRoutePath, server.handleWebSocket)
	return multiplexer
}

// Run serves until the context is canceled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: server.listenAddress, Handler: server.Handler()}
	shutdownComplete := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancelShutdown()
		_ = httpServer.Shutdown(shutdownContext)
		close(shutdownComplete)
	}()
	server.logger.Info("listening on " + server.listenAddress)
	serveError := httpServer.ListenAndServe()
	<-shutdownComplete
	if errors.Is(serveError, http.ErrServerClosed) {
		return nil
	}
	return serveError
}

func (server *Server) handleIndex(responseWriter http.ResponseWriter, request *http.Request) {
	if request.URL.Path != indexRoutePath {
		http.NotFound(responseWriter, request)
		return
	}
	pageData := struct {
		SelectedCostLabel string
	}{SelectedCostLabel: cost.FormatTokens(server.coordinator.SelectedCostTotal())}
	if renderError := server.pageTemplate.Execute(responseWriter, pageData); renderError != nil {
		server.logger.Warn("render index: " + renderError.Error())
	}
}

func (server *Server) handleChangesTree(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(responseWriter, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return
	}
	rootNodes := server.coordinator.ChangeTreeNodes()
	payloads := make([]nodePayload, 0, len(rootNodes))
	for _, rootNode := range rootNodes {
		payloads = append(payloads, payloadForSubtree(rootNode))
	}
	writeJSON(responseWriter, payloads)
}

func (server *Server) handleProjectTree(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(responseWriter, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return
	}
	folderPath := strings.Trim(request.URL.Query().Get(folderPathQueryName), "/")
	childNodes := server.coordinator.ProjectChildren(folderPath)
	payloads := make([]nodePayload, 0, len(childNodes))
	for _, childNode := range childNodes {
		payload := payloadForNode(childNode)
		if childNode.Kind == types.NodeKindFolder {
			payload.HasChildren = true
		}
		payloads = append(payloads, payload)
	}
	writeJSON(responseWriter, payloads)
}

// batchRequest is one user gesture's worth of checkbox transitions.
type batchRequest struct {
	Origin  types.NotificationOrigin `json:"origin"`
	Changes []types.SelectionChange  `json:"changes"`
}

func (server *Server) handleBatch(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(responseWriter, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return
	}
	var decodedRequest batchRequest
	if decodeError := json.NewDecoder(request.Body).Decode(&decodedRequest); decodeError != nil {
		http.Error(responseWriter, malformedRequestMessage, http.StatusBadRequest)
		return
	}
	server.coordinator.ApplyBatch(request.Context(), decodedRequest.Origin, decodedRequest.Changes)
	responseWriter.WriteHeader(http.StatusNoContent)
}

type selectAllRequest struct {
	Origin  types.NotificationOrigin `json:"origin"`
	Checked bool                     `json:"checked"`
}

func (server *Server) handleSelectAll(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(responseWriter, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return
	}
	var decodedRequest selectAllRequest
	if decodeError := json.NewDecoder(request.Body).Decode(&decodedRequest); decodeError != nil {
		http.Error(responseWriter, malformedRequestMessage, http.StatusBadRequest)
		return
	}
	if setAllError := server.coordinator.SetAllChecked(request.Context(), decodedRequest.Origin, decodedRequest.Checked); setAllError != nil {
		server.logger.Warn("select all interrupted: " + setAllError.Error())
	}
	responseWriter.WriteHeader(http.StatusNoContent)
}

type reloadRequest struct {
	TargetRef string `json:"target"`
	SourceRef string `json:"source"`
}

func (server *Server) handleReload(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(responseWriter, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return
	}
	var decodedRequest reloadRequest
	if decodeError := json.NewDecoder(request.Body).Decode(&decodedRequest); decodeError != nil {
		http.Error(responseWriter, malformedRequestMessage, http.StatusBadRequest)
		return
	}
	server.coordinator.Reload(request.Context(), decodedRequest.TargetRef, decodedRequest.SourceRef)
	responseWriter.WriteHeader(http.StatusNoContent)
}

type assembleRequest struct {
	Instructions string `json:"instructions"`
}

func (server *Server) handleAssemble(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(responseWriter, methodNotAllowedMessage, http.StatusMethodNotAllowed)
		return
	}
	var decodedRequest assembleRequest
	if decodeError := json.NewDecoder(request.Body).Decode(&decodedRequest); decodeError != nil {
		http.Error(responseWriter, malformedRequestMessage, http.StatusBadRequest)
		return
	}
	document, buildError := server.builder.BuildDocument(request.Context(), decodedRequest.Instructions)
	if buildError != nil {
		http.Error(responseWriter, buildError.Error(), http.StatusInternalServerError)
		return
	}
	responseWriter.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if renderError := assemble.Render(responseWriter, document); renderError != nil {
		server.logger.Warn("render document: " + renderError.Error())
	}
}

func (server *Server) handleWebSocket(responseWriter http.ResponseWriter, request *http.Request) {
	connection, upgradeError := server.upgrader.Upgrade(responseWriter, request, nil)
	if upgradeError != nil {
		return
	}
	server.clientsMutex.Lock()
	server.clients[connection] = struct{}{}
	server.clientsMutex.Unlock()

	go func() {
		defer func() {
			server.clientsMutex.Lock()
			delete(server.clients, connection)
			server.clientsMutex.Unlock()
			_ = connection.Close()
		}()
		for {
			if _, _, readError := connection.ReadMessage(); readError != nil {
				return
			}
		}
	}()
}

// broadcast pushes one refresh notification to every connected client as a
// single JSON frame.
func (server *Server) broadcast(notification types.RefreshNotification) {
	frame, marshalError := json.Marshal(notification)
	if marshalError != nil {
		return
	}
	server.clientsMutex.RLock()
	defer server.clientsMutex.RUnlock()
	for connection := range server.clients {
		if writeError := connection.WriteMessage(websocket.TextMessage, frame); writeError != nil {
			server.logger.Debug("websocket write failed: " + writeError.Error())
		}
	}
}

func payloadForNode(node *tree.Node) nodePayload {
	payload := nodePayload{
		Path:      node.Path,
		Name:      node.Name,
		Kind:      node.Kind,
		Status:    node.Status,
		Checked:   node.Checked,
		Locked:    node.Locked,
		Display:   node.DisplayState(),
		Cost:      node.Cost,
		CostLabel: cost.FormatTokens(node.Cost),
	}
	payload.Icon, payload.IconColor = iconForNode(node)
	return payload
}

func payloadForSubtree(node *tree.Node) nodePayload {
	payload := payloadForNode(node)
	for _, childNode := range node.Children {
		payload.Children = append(payload.Children, payloadForSubtree(childNode))
	}
	return payload
}

func writeJSON(responseWriter http.ResponseWriter, value any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(responseWriter).Encode(value)
}
