package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names in errors so clients see the field they sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator exposes the shared validator so packages can register their own
// rules at init.
func Validator() *validator.Validate { return validate }

// Decode reads a JSON or form-encoded body into v and validates it.
//
// Form bodies are mapped through the struct's json tags, so one request struct
// serves both encodings. Only string fields can be populated from a form.
func Decode(r *http.Request, v any) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := decodeForm(r, v); err != nil {
			return err
		}
	case "application/json", "":
		dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported content type %q", ct)
	}

	return Validate(v)
}

// DecodeQuery fills v from the URL query string using the same json tag
// mapping as form bodies, then validates it.
func DecodeQuery(r *http.Request, v any) error {
	if err := fillFromValues(r.URL.Query(), v); err != nil {
		return err
	}
	return Validate(v)
}

// Validate runs struct validation and flattens the result into one error.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("validation error: %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func decodeForm(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form body: %w", err)
	}
	return fillFromValues(r.PostForm, v)
}

func fillFromValues(values map[string][]string, v any) error {
	flat := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 1 {
			// RFC 6749 3.1: parameters must not be repeated
			return fmt.Errorf("parameter %q repeated", k)
		}
		if len(vs) == 1 {
			flat[k] = vs[0]
		}
	}

	raw, err := json.Marshal(flat)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
