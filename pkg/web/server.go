// Package web はブラウザクライアント向けのHTTPファサードです。
// セッションの作成、画像アップロード、ストローク反映、プロンプト更新、
// 生成・補正・履歴操作・出力ダウンロードをJSON/HTTPで公開します。
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shouni/image-edit-kit/pkg/config"
	"github.com/shouni/image-edit-kit/pkg/domain"
	"github.com/shouni/image-edit-kit/pkg/editor"
)

const (
	// DefaultAddr はサーバーの既定の待ち受けアドレスです。
	DefaultAddr = "localhost:8080"

	// ReadTimeout はリクエスト全体の読み込み上限時間です。
	ReadTimeout = 15 * time.Second

	// WriteTimeout は書き込みのタイムアウトです。生成系は推論時間が
	// 上乗せされるため長めにとります。
	WriteTimeout = 180 * time.Second

	// IdleTimeout は次のリクエストを待つ最大時間です。
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout はグレースフルシャットダウンの待ち時間です。
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBodySize はPOSTボディの上限です。データURLの
	// アップロードが通る大きさ（16MB）にしています。
	MaxRequestBodySize = 16 * 1024 * 1024
)

// Server は編集セッション群を束ねるHTTPサーバーです。
type Server struct {
	addr   string
	server *http.Server

	generator editor.Generator
	refiner   editor.Refiner
	loader    editor.SourceLoader
	cfg       config.Config

	mu       sync.RWMutex
	sessions map[string]*editor.Session
}

// NewServer は依存関係を注入してサーバーを作成します。
// addr が空なら DefaultAddr を使用します。
func NewServer(addr string, gen editor.Generator, ref editor.Refiner, loader editor.SourceLoader, cfg config.Config) (*Server, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if ref == nil {
		return nil, fmt.Errorf("refiner is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:      addr,
		generator: gen,
		refiner:   ref,
		loader:    loader,
		cfg:       cfg,
		sessions:  make(map[string]*editor.Session),
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s, nil
}

// Handler はルーティング済みのハンドラを返します。テストから
// httptest.Server に差し込めるように公開しています。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleState)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/image", s.handleSetImage)
	mux.HandleFunc("POST /api/sessions/{id}/strokes", s.handleStrokes)
	mux.HandleFunc("POST /api/sessions/{id}/prompt", s.handlePrompt)
	mux.HandleFunc("POST /api/sessions/{id}/brush", s.handleBrush)
	mux.HandleFunc("POST /api/sessions/{id}/layout", s.handleLayout)
	mux.HandleFunc("POST /api/sessions/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/sessions/{id}/enhance", s.handleEnhance)
	mux.HandleFunc("POST /api/sessions/{id}/undo", s.handleUndo)
	mux.HandleFunc("POST /api/sessions/{id}/redo", s.handleRedo)
	mux.HandleFunc("GET /api/sessions/{id}/output", s.handleOutput)
	return mux
}

// Start はHTTPサーバーを起動します。ブロックします。
func (s *Server) Start() error {
	slog.Info("編集サーバーを起動します", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTPサーバーの起動に失敗しました: %w", err)
	}
	return nil
}

// Shutdown はグレースフルに停止し、全セッションを閉じます。
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.sessions = make(map[string]*editor.Session)
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

// session はIDでセッションを引きます。
func (s *Server) session(id string) (*editor.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// --- Handlers ---

type createSessionResponse struct {
	Snapshot editor.Snapshot `json:"snapshot"`
	Presets  []string        `json:"presets"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := editor.NewSession(s.generator, s.refiner, s.loader, s.cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	names := make([]string, 0, len(s.cfg.Presets))
	for _, p := range s.cfg.Presets {
		names = append(names, p.Name)
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Snapshot: sess.State(),
		Presets:  names,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

type setImageRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleSetImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req setImageRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("source is required"))
		return
	}

	if err := sess.SetImage(r.Context(), req.Source); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type strokesRequest struct {
	Strokes []domain.Stroke `json:"strokes"`
}

func (s *Server) handleStrokes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req strokesRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Strokes) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("strokes is required"))
		return
	}

	for _, st := range req.Strokes {
		if err := sess.AddStroke(r.Context(), st); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req promptRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess.SetPrompt(req.Prompt)
	writeJSON(w, http.StatusAccepted, sess.State())
}

func (s *Server) handleBrush(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req domain.BrushSettings
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess.SetBrush(req)
	writeJSON(w, http.StatusOK, sess.State())
}

type layoutRequest struct {
	Mobile bool `json:"mobile"`
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req layoutRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess.SetMobileLayout(req.Mobile)
	writeJSON(w, http.StatusOK, sess.State())
}

type generateRequest struct {
	UseOutputImage bool `json:"use_output_image"`
	Iterations     int  `json:"iterations"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req generateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.Generate(r.Context(), req.UseOutputImage, req.Iterations); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type enhanceRequest struct {
	Instruction string `json:"instruction"`
	Seed        *int64 `json:"seed,omitempty"`
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	var req enhanceRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Instruction == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("instruction is required"))
		return
	}

	if err := sess.Enhance(r.Context(), req.Instruction, req.Seed); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}
	_, moved := sess.Undo()
	writeJSON(w, http.StatusOK, historyMoveResponse{Moved: moved, Snapshot: sess.State()})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}
	_, moved := sess.Redo()
	writeJSON(w, http.StatusOK, historyMoveResponse{Moved: moved, Snapshot: sess.State()})
}

type historyMoveResponse struct {
	Moved    bool            `json:"moved"`
	Snapshot editor.Snapshot `json:"snapshot"`
}

// handleOutput は表示中の出力画像を返します。?download=1 で
// PNGの添付ファイルとして書き出します。
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("セッションが見つかりません"))
		return
	}

	if r.URL.Query().Get("download") != "" {
		data, name, err := sess.ExportPNG()
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Write(data)
		return
	}

	out, ok := sess.Output()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("出力画像がまだありません"))
		return
	}
	w.Header().Set("Content-Type", out.MimeType)
	w.Write(out.Data)
}

// --- helpers ---

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("リクエストボディの解析に失敗しました: %w", err)
	}
	return nil
}
