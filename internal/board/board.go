package board

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how errors are handled during board loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Board is the set of bindings loaded from a directory, in CUE field
// order.
type Board struct {
	Bindings  []Binding
	FileCount int
}

// Lookup returns the binding called name.
func (b *Board) Lookup(name string) (Binding, bool) {
	for _, bnd := range b.Bindings {
		if bnd.Name == name {
			return bnd, true
		}
	}
	return Binding{}, false
}

// LoadError represents an error that occurred during board loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeQuery   = "E101" // Missing or conflicting query
	ErrCodeIDs     = "E102" // Bad ids list
	ErrCodeFilter  = "E103" // Filter does not parse
	ErrCodeExpr    = "E104" // Empty expression
	ErrCodePoll    = "E105" // Bad poll interval
	ErrCodeUnknown = "E106" // Unknown binding field
)

// MapFieldToErrorCode maps a CompileError field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "query":
		return ErrCodeQuery
	case "ids":
		return ErrCodeIDs
	case "filter":
		return ErrCodeFilter
	case "expr":
		return ErrCodeExpr
	case "poll":
		return ErrCodePoll
	case "binding":
		return ErrCodeUnknown
	default:
		return ErrCodeGeneric
	}
}

// Load loads and compiles every binding of the CUE files in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*Board, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("board directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing board directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	board, errs := compileBoard(value, mode)
	board.FileCount = len(cueFiles)
	return board, errs
}

// CompileValue compiles the bindings of an already built CUE value.
func CompileValue(value cue.Value, mode LoadMode) (*Board, []error) {
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return compileBoard(value, mode)
}

func compileBoard(value cue.Value, mode LoadMode) (*Board, []error) {
	var errs []error
	board := &Board{}

	bindingsVal := value.LookupPath(cue.ParsePath("binding"))
	if !bindingsVal.Exists() {
		return board, []error{&LoadError{Code: ErrCodeGeneric, Message: "no bindings found"}}
	}
	iter, err := bindingsVal.Fields()
	if err != nil {
		return board, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating bindings: %v", err)}}
	}
	for iter.Next() {
		b, err := CompileBinding(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "binding."+iter.Selector().String()))
			if mode == LoadModeFailFast {
				return board, errs
			}
			continue
		}
		board.Bindings = append(board.Bindings, *b)
	}

	if len(board.Bindings) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no bindings found"})
	}
	return board, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compile error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: context + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
