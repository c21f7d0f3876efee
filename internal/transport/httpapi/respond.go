package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := encode(response{Data: data})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to encode response")
		return
	}
	writeRaw(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body, _ := encode(response{Error: &errorResponse{Code: code, Message: message}})
	writeRaw(w, status, body)
}

// decodeAndValidate читает JSON-тело и проверяет теги validate.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) *errorResponse {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()}
	}
	return validateStruct(dst)
}

func validateStruct(v any) *errorResponse {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &errorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := msgForTag(fe)
		fields[fe.Field()] = msg
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fe.Field(), msg))
	}
	return &errorResponse{Code: "VALIDATION_ERROR", Message: strings.Join(msgs, "; "), Fields: fields}
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "ne":
		return "must not be " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// errorFor переводит доменную ошибку в HTTP-ответ.
func errorFor(err error) (int, *errorResponse) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrLineNotFound):
		return http.StatusNotFound, &errorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrUserRequired):
		return http.StatusUnauthorized, &errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"}
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrSessionConflict),
		errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, &errorResponse{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity, &errorResponse{Code: "IDEMPOTENCY_KEY_REUSED", Message: err.Error()}
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway, &errorResponse{Code: "PAYMENT_UNAVAILABLE", Message: "payment unavailable"}
	case domain.IsValidation(err):
		return http.StatusBadRequest, &errorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	default:
		return http.StatusInternalServerError, &errorResponse{Code: "INTERNAL", Message: "internal error"}
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	raw, _ := encode(response{Error: body})
	writeRaw(w, status, raw)
}
