package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"AIButler-Chain/internal/butler"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/indexer"
	"AIButler-Chain/internal/keeper"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/observability/metrics"
	"AIButler-Chain/pkg/logger"
)

// KeeperStats 暴露 keeper 的处理统计。
type KeeperStats interface {
	Stats() keeper.Stats
}

// Server 负责暴露 REST 接口，供钱包、前端或自动化脚本驱动合约。
type Server struct {
	addr         string
	svc          *butler.Service
	events       indexer.Store
	keeper       KeeperStats
	clock        *ledger.ManualClock
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
	handler      http.Handler
}

// Option 定义可选配置。
type Option func(*Server)

// WithEventStore 开启事件查询接口。
func WithEventStore(store indexer.Store) Option {
	return func(s *Server) {
		s.events = store
	}
}

// WithKeeper 开启 keeper 统计接口。
func WithKeeper(k KeeperStats) Option {
	return func(s *Server) {
		s.keeper = k
	}
}

// WithManualClock 开启手动时钟接口，仅用于演示与联调。
func WithManualClock(clock *ledger.ManualClock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithTimeouts 设置读写超时。
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc *butler.Service, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		svc:          svc,
		readTimeout:  15 * time.Second,
		writeTimeout: 15 * time.Second,
		logger:       logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.handler = s.routes()
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, fn))
	}

	handle("GET /healthz", s.handleHealth)

	handle("POST /api/v1/batches", s.handleExecuteBatch)
	handle("POST /api/v1/batches/estimate", s.handleEstimateGas)
	handle("GET /api/v1/batches/stats", s.handleBatchStats)

	handle("POST /api/v1/schedules", s.handleSchedule)
	handle("GET /api/v1/schedules", s.handleListSchedules)
	handle("GET /api/v1/schedules/{id}", s.handleGetSchedule)
	handle("GET /api/v1/schedules/{id}/ready", s.handleScheduleReady)
	handle("POST /api/v1/schedules/{id}/execute", s.handleExecuteSchedule)
	handle("POST /api/v1/schedules/{id}/cancel", s.handleCancelSchedule)

	handle("POST /api/v1/workflows", s.handleCreateWorkflow)
	handle("GET /api/v1/workflows", s.handleListWorkflows)
	handle("GET /api/v1/workflows/{id}", s.handleGetWorkflow)
	handle("GET /api/v1/workflows/{id}/actions/{index}", s.handleGetWorkflowAction)
	handle("POST /api/v1/workflows/{id}/execute", s.handleExecuteWorkflow)
	handle("POST /api/v1/workflows/{id}/cancel", s.handleCancelWorkflow)

	handle("POST /api/v1/connectors", s.handleRegisterConnector)
	handle("DELETE /api/v1/connectors", s.handleUnregisterConnector)
	handle("GET /api/v1/connectors", s.handleConnectors)

	handle("GET /api/v1/accounts/{address}", s.handleAccount)
	handle("POST /api/v1/accounts/{address}/fund", s.handleFund)

	handle("GET /api/v1/events", s.handleEvents)
	handle("GET /api/v1/keeper", s.handleKeeperStats)
	if s.clock != nil {
		handle("POST /api/v1/clock/advance", s.handleAdvanceClock)
	}

	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument 记录请求耗时与状态码，并为每个请求分配 request id。
func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(pattern, r.Method, rec.status, elapsed)
		s.logger.Debug("处理请求",
			slog.String("request_id", requestID),
			slog.String("route", pattern),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", elapsed))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "服务已关闭"), nil)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor 将错误类别映射为 HTTP 状态码。
func statusFor(err error) int {
	switch xerrors.KindOf(err) {
	case xerrors.KindValidation:
		return http.StatusBadRequest
	case xerrors.KindAuthorization:
		return http.StatusForbidden
	case xerrors.KindNotFound:
		return http.StatusNotFound
	case xerrors.KindTiming, xerrors.KindStatus:
		return http.StatusConflict
	case xerrors.KindFunding:
		return http.StatusPaymentRequired
	case xerrors.KindInnerCall, xerrors.KindReentrancy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, receipt *ReceiptDTO) {
	detail := ErrorDetail{
		Code:    string(xerrors.CodeOf(err)),
		Message: xerrors.Reason(err),
	}
	if receipt != nil {
		detail.TxHash = receipt.TxHash
	}
	writeJSON(w, statusFor(err), ErrorBody{Error: detail})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}
