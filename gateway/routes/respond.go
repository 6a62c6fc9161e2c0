package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"judgedescrow/native/escrow"
)

const requestLimit = 1 << 16 // 64 KiB

func decodeRequest(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	data, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

var (
	validationErrors = []error{
		escrow.ErrTaxTooHigh, escrow.ErrFeeTooHigh, escrow.ErrInvalidEscrowAmount,
		escrow.ErrInvalidAsset, escrow.ErrEscrowNotNative, escrow.ErrEscrowNotToken,
		escrow.ErrWrongToken, escrow.ErrAmountOverflow,
	}
	authorizationErrors = []error{
		escrow.ErrUninvolvedUser, escrow.ErrUnauthorizedJudge, escrow.ErrUnauthorizedConfigJudge,
		escrow.ErrNotPayerReleasing, escrow.ErrNotPayeeReturning, escrow.ErrNotPayerRecovering,
	}
	notFoundErrors = []error{escrow.ErrConfigNotFound, escrow.ErrEscrowNotFound}
	conflictErrors = []error{
		escrow.ErrConfigExists, escrow.ErrEscrowExists, escrow.ErrEscrowDisputed,
		escrow.ErrEscrowNotDisputed, escrow.ErrEscrowFunded, escrow.ErrEscrowNotFunded,
		escrow.ErrNoPendingJudge, escrow.ErrRecoverTooEarly,
	}
)

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	matches := func(targets []error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
	switch {
	case errors.Is(err, escrow.ErrInfrastructure):
		return http.StatusInternalServerError
	case matches(validationErrors):
		return http.StatusBadRequest
	case matches(authorizationErrors):
		return http.StatusForbidden
	case matches(notFoundErrors):
		return http.StatusNotFound
	case matches(conflictErrors):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		// Infrastructure detail stays in the server logs.
		writeJSONError(w, status, errors.New("internal error"))
		return
	}
	writeJSONError(w, status, err)
}
