package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/logging"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: msg, Data: data})
}

func writeFail(w http.ResponseWriter, _ *http.Request, code int, msg string, details any) {
	writeJSON(w, code, envelope{Success: false, Message: msg, Errors: details})
}

// writeError renders any error through the apperr taxonomy. Internal causes
// are logged by the service and never reach the body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		logging.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeFail(w, r, e.HTTPStatus(), e.Message, nil)
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	writeFail(w, r, http.StatusUnauthorized, msg, nil)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeFail(w, r, http.StatusTooManyRequests, "too many requests", nil)
}

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed JSON body: %v", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var tagMessages = map[string]string{
	"required": "is required",
	"oneof":    "must be one of: ",
	"gt":       "must be greater than ",
	"lte":      "must be at most ",
	"max":      "must be at most %s characters",
}

// validationErrors turns validator output into per-field messages.
func validationErrors(err error) []fieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []fieldError{{Message: err.Error()}}
	}
	out := make([]fieldError, 0, len(ve))
	for _, fe := range ve {
		msg, ok := tagMessages[fe.Tag()]
		switch {
		case !ok:
			msg = "is invalid"
		case strings.Contains(msg, "%s"):
			msg = strings.Replace(msg, "%s", fe.Param(), 1)
		case strings.HasSuffix(msg, " "):
			msg += fe.Param()
		}
		out = append(out, fieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
