package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ipnis/internal/manager"
	"ipnis/internal/signing"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager implements it.
type Service interface {
	LoadModel(ctx context.Context, p types.Path) (types.Model, error)
	CallTensors(ctx context.Context, model types.Model, inputs []tensor.Tensor) ([]tensor.Tensor, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the HTTP handler. Every /v1/rpc request must be signed by
// an account signer accepts, and every response is countersigned by it.
func NewMux(svc Service, signer signing.Signer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	h := &rpcHandler{svc: svc, signer: signer}
	r.Post("/v1/rpc", h.serveRPC)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

type rpcHandler struct {
	svc    Service
	signer signing.Signer
}

// serveRPC handles a signed LoadModel or Call request.
//
//	@Summary	Signed RPC
//	@Tags		rpc
//	@Accept		json
//	@Produce	json
//	@Param		request	body		signing.Envelope	true	"Envelope whose payload is a types.Request"
//	@Success	200		{object}	signing.Envelope	"Countersigned envelope whose payload is a types.Response"
//	@Failure	400		{object}	types.ErrorResponse
//	@Failure	401		{object}	types.ErrorResponse
//	@Failure	403		{object}	types.ErrorResponse
//	@Failure	404		{object}	types.ErrorResponse
//	@Failure	422		{object}	types.ErrorResponse
//	@Failure	429		{object}	types.ErrorResponse
//	@Failure	503		{object}	types.ErrorResponse
//	@Router		/v1/rpc [post]
func (h *rpcHandler) serveRPC(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var env signing.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.signer.Verify(env); err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	var req types.Request
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	op := "call"
	if req.LoadModel != nil {
		op = "load_model"
	}
	lvl := requestLogLevel(r)
	start := time.Now()
	if lvl >= LevelInfo {
		logRPC(r, op, "rpc start", 0, 0, nil)
	}

	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	defer cancel()
	if callTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, time.Duration(callTimeout)*time.Second)
		defer tcancel()
	}

	resp, err := h.dispatch(ctx, req)
	if err != nil {
		// Client went away; nobody reads the response.
		if r.Context().Err() != nil {
			return
		}
		status := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("queue")
		}
		rpcTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
		writeJSONError(w, status, err.Error())
		if lvl >= LevelError {
			logRPC(r, op, "rpc end", status, time.Since(start), err)
		}
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	out, err := h.signer.SignAsGuarantor(env, payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rpcTotal.WithLabelValues(op, "200").Inc()

	w.Header().Set("Content-Type", "application/json")
	dst := io.Writer(w)
	if lvl >= LevelDebug {
		dst = io.MultiWriter(w, &loggingLineWriter{})
	}
	_ = json.NewEncoder(dst).Encode(out)
	if lvl >= LevelInfo {
		logRPC(r, op, "rpc end", http.StatusOK, time.Since(start), nil)
	}
}

func (h *rpcHandler) dispatch(ctx context.Context, req types.Request) (types.Response, error) {
	if req.LoadModel != nil {
		model, err := h.svc.LoadModel(ctx, req.LoadModel.Path)
		if err != nil {
			return types.Response{}, err
		}
		return types.Response{LoadModel: &types.LoadModelResponse{Model: model}}, nil
	}
	outputs, err := h.svc.CallTensors(ctx, req.Call.Model, req.Call.Inputs)
	if err != nil {
		return types.Response{}, err
	}
	return types.Response{Call: &types.CallResponse{Outputs: outputs}}, nil
}

func logRPC(r *http.Request, op, msg string, status int, dur time.Duration, err error) {
	rid := middleware.GetReqID(r.Context())
	if zlog == nil {
		log.Printf("%s op=%s status=%d dur=%s request_id=%s err=%v", msg, op, status, dur, rid, err)
		return
	}
	ev := zlog.Info()
	if err != nil {
		ev = zlog.Warn().Err(err)
	}
	ev = ev.Str("op", op)
	if status != 0 {
		ev = ev.Int("status", status).Dur("dur", dur)
	}
	if rid != "" {
		ev = ev.Str("request_id", rid)
	}
	ev.Msg(msg)
}

// Compile-time check that the manager satisfies Service.
var _ Service = (*manager.Manager)(nil)
