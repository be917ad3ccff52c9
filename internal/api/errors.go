package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/congestion.report/internal/db"
	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/httputil"
	"github.com/banshee-data/congestion.report/internal/monitoring"
)

// artifactError marks a model artifact that failed to load. It is a server
// misconfiguration even when the underlying error is a ConfigurationError.
type artifactError struct {
	Path string
	Err  error
}

func (e *artifactError) Error() string {
	return fmt.Sprintf("model artifact %s unavailable: %v", e.Path, e.Err)
}

func (e *artifactError) Unwrap() error { return e.Err }

// statusFor maps pipeline errors onto HTTP status codes. Bad input and bad
// request parameters are the caller's fault; anything else is ours.
func statusFor(err error) int {
	var (
		artifact     *artifactError
		validation   *hotspot.ValidationError
		insufficient *hotspot.InsufficientDataError
		configErr    *hotspot.ConfigurationError
		tooLarge     *http.MaxBytesError
	)
	switch {
	case errors.As(err, &artifact):
		return http.StatusInternalServerError
	case errors.As(err, &validation), errors.As(err, &insufficient), errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, db.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		monitoring.Logf("api: %v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}
