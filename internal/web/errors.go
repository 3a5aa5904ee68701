package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"raspored/internal/layout"
	appLog "raspored/internal/log"
	"raspored/internal/model"
	"raspored/internal/week"
)

const (
	codeNotFound          = "not_found"
	codeMethodNotAllowed  = "method_not_allowed"
	codeInvalidBody       = "invalid_request_body"
	codeInvalidWeek       = "invalid_week"
	codeInvalidDuration   = "invalid_duration"
	codeOutOfRangeHour    = "out_of_range_hour"
	codeInvalidDay        = "invalid_day"
	codeInvalidTime       = "invalid_time"
	codeInvalidID         = "invalid_id"
	codeInvalidEmail      = "invalid_email"
	codeInvalidForm       = "invalid_form"
	codeJMBAGRequired     = "jmbag_required"
	codeEventNotFound     = "event_not_found"
	codeTeacherNotFound   = "teacher_not_found"
	codeStudentNotFound   = "student_not_found"
	codeReferenceNotFound = "reference_not_found"
	codeForbidden         = "forbidden"
	codeRateLimited       = "rate_limited"
	codeInternalError     = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

var sentinelCodes = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrInvalidDay, http.StatusBadRequest, codeInvalidDay},
	{model.ErrInvalidTime, http.StatusBadRequest, codeInvalidTime},
	{model.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{model.ErrInvalidEmail, http.StatusBadRequest, codeInvalidEmail},
	{model.ErrInvalidForm, http.StatusBadRequest, codeInvalidForm},
	{model.ErrJMBAGRequired, http.StatusBadRequest, codeJMBAGRequired},
	{model.ErrReferenceNotFound, http.StatusBadRequest, codeReferenceNotFound},
	{model.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
	{model.ErrTeacherNotFound, http.StatusNotFound, codeTeacherNotFound},
	{model.ErrStudentNotFound, http.StatusNotFound, codeStudentNotFound},
}

// errorStatus maps a service error to an HTTP status and stable code.
func errorStatus(err error) (int, string) {
	var invalidWeek *week.InvalidWeekError
	var invalidDuration *layout.InvalidDurationError
	var outOfRange *layout.OutOfRangeHourError
	switch {
	case errors.As(err, &invalidWeek), errors.Is(err, errWeekParams):
		return http.StatusBadRequest, codeInvalidWeek
	case errors.As(err, &invalidDuration):
		return http.StatusBadRequest, codeInvalidDuration
	case errors.As(err, &outOfRange):
		return http.StatusBadRequest, codeOutOfRangeHour
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.status, sc.code
		}
	}
	return http.StatusInternalServerError, codeInternalError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}
