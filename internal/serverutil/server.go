// Package serverutil holds the pieces every HTTP handler here shares: JSON responses, request
// decoding and validation, access logging and the error-returning handler type.
package serverutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	garerrs "github.com/jdholdren/garage/internal/errors"
	"github.com/jdholdren/garage/internal/logger"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "garage_http_request_duration_seconds",
	Help:    "Time taken to serve HTTP requests.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "status"})

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// Validator is a surface that can validate itself and return an error
// if something is wrong.
type Validator interface {
	Validate() error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks the `validate` tags of v, reporting each failing field as a [garerrs.Detail].
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return garerrs.E(err, http.StatusBadRequest)
	}

	details := make([]garerrs.Detail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, garerrs.Detail{
			Field: fe.Field(),
			Error: fmt.Sprintf("failed on %q", fe.Tag()),
		})
	}
	return garerrs.E("invalid request", details, http.StatusBadRequest)
}

func init() {
	// Report fields by their json names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// DecodeValid decodes a request and then validates it. Anything wrong with the request comes
// back as a 400 unless Validate chose another status.
func DecodeValid[V Validator](r io.Reader) (V, error) {
	var v V
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, garerrs.E(fmt.Errorf("error decoding request: %w", err), http.StatusBadRequest)
	}
	if err := v.Validate(); err != nil {
		var gErr *garerrs.Error
		if errors.As(err, &gErr) {
			return v, gErr
		}
		return v, garerrs.E(fmt.Errorf("error validating request: %w", err), http.StatusBadRequest)
	}

	return v, nil
}

// Route variables that are credentials. They never reach a log line.
var secretVars = map[string]bool{"token": true}

// AccessLogMiddleware logs every request once it's served. It must be installed with
// [mux.Router.Use] so the matched route is known and secret variables can be left as placeholders.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.Ctx(r.Context(), slog.String("method", r.Method), slog.String("path", loggedPath(r)))
		r = r.WithContext(ctx)
		start := time.Now()

		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		elapsed := time.Since(start)
		requestDuration.WithLabelValues(r.Method, strconv.Itoa(writer.code)).Observe(elapsed.Seconds())
		slog.InfoContext(ctx, "request completed",
			"duration", elapsed,
			"status_code", writer.code,
		)
	})
}

// loggedPath is the matched route's template with every variable filled in except the secret
// ones. Without a route there's no template, so the path is left out entirely.
func loggedPath(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}

	for name, val := range mux.Vars(r) {
		if secretVars[name] {
			continue
		}
		tmpl = strings.ReplaceAll(tmpl, "{"+name+"}", val)
	}
	return tmpl
}

// To trap the response status code for logging later.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	gErr := &garerrs.Error{}
	if !errors.As(err, &gErr) {
		slog.ErrorContext(r.Context(), "unhandled error", "err", err)
		gErr = garerrs.E(http.StatusInternalServerError, "internal server error")
	}

	if err := WriteJSON(w, gErr.Status, gErr); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}

// ErrRouter is a newtype around a mux router that allows attaching handlers that return errors.
type ErrRouter struct {
	*mux.Router
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}
