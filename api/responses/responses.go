package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

// RetryAfterSeconds is advertised on retryable failures such as an ambiguous
// gateway verification or a cancel that races an in-flight payment.
const RetryAfterSeconds = 5

// fixedMessages never echo the error's own message: payment failures must not
// reveal gateway reasons or signature internals to the buyer.
var fixedMessages = map[pkgerrors.Code]bool{
	pkgerrors.CodeSignatureInvalid: true,
	pkgerrors.CodePaymentFailed:    true,
}

// logFields are detail keys copied into the log line when present.
var logFields = []string{"order_id", "payment_id", "refund_id", "return_id", "sell_unit_id", "step"}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError maps err onto its code's status and envelope. Client errors carry
// the error's own message; server errors only ever expose the public message.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	code := typed.Code()
	meta := pkgerrors.MetadataFor(code)

	body := ErrorBody{Code: string(code), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError && !fixedMessages[code] && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logError(ctx, logg, err, typed, meta.HTTPStatus)
	}
	if meta.Retryable && code != pkgerrors.CodeInternal {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

func logError(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	fields := map[string]any{
		"error_code": typed.Code(),
		"status":     status,
	}
	if dm, ok := typed.Details().(map[string]any); ok {
		for _, key := range logFields {
			if v, ok := dm[key]; ok {
				fields[key] = v
			}
		}
	}

	if status < http.StatusInternalServerError {
		fields["error"] = err.Error()
		logg.Info(logg.WithFields(ctx, fields), "request.rejected")
		return
	}

	dump := pkgerrors.Dump(err)
	fields["error_chain"] = dump.Chain
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_constraint"] = dump.PGConstraint
		fields["pg_table"] = dump.PGTable
		fields["pg_detail"] = dump.PGDetail
	}
	if dump.Hint != "" {
		fields["db_hint"] = dump.Hint
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are gone at this point; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(payload)
}
