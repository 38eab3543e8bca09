package dispatch

import (
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

// validateArguments checks args against the function's parameter schema.
// A schema gojsonschema cannot load is logged and the call let through.
func validateArguments(fn openapi.FunctionDef, args toolcall.Arguments) error {
	if len(fn.Parameters) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(fn.Parameters),
		gojsonschema.NewGoLoader(args.Raw),
	)
	if err != nil {
		slog.Warn("argument schema not usable for validation",
			slog.String("function", fn.Name),
			slog.Any("error", err))
		return nil
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ArgumentValidationError{Function: fn.Name, Problems: problems}
}
