// Пакет openapi — встроенный OpenAPI контракт Identity Admin и middleware
// валидации входящих запросов по нему (kin-openapi).
package openapi

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"

	apierrors "github.com/bigkaa/fleetops/identity-admin/internal/api/errors"
)

//go:embed openapi.yaml
var specYAML []byte

// Load разбирает и проверяет встроенный OpenAPI документ.
func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI документа: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("проверка OpenAPI документа: %w", err)
	}
	return doc, nil
}

// Validator проверяет запросы к описанным в контракте операциям.
// Пути без описания (health, metrics) пропускаются без проверки.
type Validator struct {
	routes   map[string]*routers.Route
	onReject func(r *http.Request, reason string)
	logger   *slog.Logger
}

// NewValidator строит таблицу маршрутов из документа.
func NewValidator(doc *openapi3.T, logger *slog.Logger) *Validator {
	v := &Validator{
		routes: make(map[string]*routers.Route),
		logger: logger.With(slog.String("component", "openapi_validator")),
	}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			v.routes[routeKey(method, path)] = &routers.Route{
				Spec:      doc,
				Path:      path,
				PathItem:  item,
				Method:    method,
				Operation: op,
			}
		}
	}
	return v
}

// OnReject задаёт обработчик отклонённых запросов (запись в журнал операций).
// Вызывается до ответа клиенту; тело запроса к этому моменту снова доступно.
func (v *Validator) OnReject(fn func(r *http.Request, reason string)) *Validator {
	v.onReject = fn
	return v
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Middleware возвращает HTTP middleware валидации запросов.
// Несоответствие контракту — 400 VALIDATION_ERROR.
func (v *Validator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := v.routes[routeKey(r.Method, r.URL.Path)]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request: r,
				Route:   route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				msg := describe(err)
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("path", r.URL.Path),
					slog.String("reason", msg),
				)
				if v.onReject != nil {
					v.onReject(r, msg)
				}
				apierrors.ValidationError(w, msg)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// describe формирует сообщение об ошибке валидации без значений полей:
// тела запросов содержат пароли и секреты.
func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return "Некорректный запрос"
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		}
		if field == "" {
			return "Тело запроса не соответствует контракту: " + schemaErr.Reason
		}
		return fmt.Sprintf("Поле %s: %s", field, schemaErr.Reason)
	}

	if reqErr.Parameter != nil {
		return fmt.Sprintf("Некорректный параметр %s", reqErr.Parameter.Name)
	}
	if reqErr.RequestBody != nil {
		return "Некорректное тело запроса"
	}
	return "Некорректный запрос"
}
