package wire

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaCUE string

// Schema definition names.
const (
	DefTrackerResponse = "#TrackerResponse"
	DefConditionRows   = "#ConditionRows"
	DefActionRows      = "#ActionRows"
	DefPlaceholderRows = "#PlaceholderRows"
	DefNotification    = "#Notification"
)

// SchemaError reports a response that does not match its schema.
type SchemaError struct {
	Definition string
	Message    string
	Pos        token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s (at %s)", e.Definition, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Definition, e.Message)
}

// validator holds the compiled schema. A cue.Context is not safe for
// concurrent use, and cache fills validate from several goroutines.
type validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

var loadValidator = sync.OnceValues(func() (*validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile wire schema: %w", err)
	}
	return &validator{ctx: ctx, schema: schema}, nil
})

// Validate checks data against the named definition.
func Validate(def string, data []byte) error {
	v, err := loadValidator()
	if err != nil {
		return err
	}
	return v.validate(def, data)
}

func (v *validator) validate(def string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	schema := v.schema.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("unknown schema definition %s", def)
	}

	expr, err := cuejson.Extract("response.json", data)
	if err != nil {
		return formatCUEError(def, err)
	}

	value := v.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return formatCUEError(def, err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(def, err)
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(def string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Definition: def, Message: err.Error()}
	}

	firstErr := errs[0]
	se := &SchemaError{Definition: def, Message: firstErr.Error()}
	if positions := cueerrors.Positions(firstErr); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
