package service

import (
	"fmt"
	"strings"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/doc"
)

// Error is a failed call as seen by the client.
type Error struct {
	Code int
	// Symbol replaces the numeric code on the wire when set.
	Symbol string
	Text   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s", e.Symbol, e.Text)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Text)
}

// Response renders e as a failed call response.
func (e *Error) Response() Response {
	var code doc.Value = doc.Int(e.Code)
	if e.Symbol != "" {
		code = doc.String(e.Symbol)
	}
	return Response{
		"returnValue": doc.Bool(false),
		"errorCode":   code,
		"errorText":   doc.String(e.Text),
	}
}

// Error codes of the reference protocol. The same condition does not
// always map to the same code; each handler picks the one its method uses.
const (
	CodeUnknownMethod    = -1
	CodeInvalidParams    = 22
	CodeEmptyDelete      = -999
	CodeRequiredProp     = -986
	CodeKindNotReg       = -3670
	CodePermission       = -3963
	CodeNoIndex          = -3965
	CodeKindNotSpecified = -3969
	CodeNotRegistered    = -3970
	CodeSearchOperator   = -3978
	CodeBatchKey         = -3984
	CodeAccessDenied     = -3999
	CodeUnknown          = -9999
)

// SymbolJSON is the code of unparsable params.
const SymbolJSON = "ERROR_99"

var (
	errJSON             = &Error{Symbol: SymbolJSON, Text: "JSON format error."}
	errPermissionDenied = &Error{Code: CodePermission, Text: "db: permission denied"}
	errAccessDenied     = &Error{Code: CodeAccessDenied, Text: "db: access denied"}
	errKindNotSpecified = &Error{Code: CodeKindNotSpecified, Text: "db: kind not specified"}
	errSearchOperator   = &Error{Code: CodeSearchOperator, Text: "db: search operator not allowed in find"}
	errNoIndex          = &Error{Code: CodeNoIndex, Text: "db: no index for query"}
	errEmptyDelete      = &Error{Code: CodeEmptyDelete, Text: "ids, query is empty"}
	errUnknown          = &Error{Code: CodeUnknown, Text: "unknown error"}
	errMergeBoth        = &Error{Code: CodeInvalidParams, Text: "db: cannot have both an objects param and a query param"}
	errMergeNeither     = &Error{Code: CodeInvalidParams, Text: "db: either objects or query param required for merge"}
	errTooManyIDs       = &Error{Code: CodeInvalidParams, Text: fmt.Sprintf("db: count exceeds %d", db.MaxReserveIDs)}
)

func errUnknownMethod(category, method string) *Error {
	return &Error{
		Code: CodeUnknownMethod,
		Text: fmt.Sprintf("Unknown method %q for category \"/%s\"", method, strings.TrimPrefix(category, "/")),
	}
}

func errRequired(prop string) *Error {
	return &Error{Code: CodeRequiredProp, Text: fmt.Sprintf("required prop not found: '%s'", prop)}
}

func errBatchKey(key string) *Error {
	return &Error{Code: CodeBatchKey, Text: fmt.Sprintf("No required key: %q", key)}
}

func errReservedKind(name string) *Error {
	return &Error{Code: CodeInvalidParams, Text: fmt.Sprintf("db: kind name is reserved: '%s'", name)}
}

// notRegistered renders the kind-not-registered text, leaving the quoted
// name out when there is none.
func notRegistered(code int, kind string) *Error {
	text := "kind not registered"
	if kind != "" {
		text = fmt.Sprintf("kind not registered: '%s'", kind)
	}
	return &Error{Code: code, Text: text}
}

// errInvalidEnum is the "invalid enum value" failure reported for a bad
// operator. find names the query path, merge by query the operations path.
func errInvalidEnum(caller, path string) *Error {
	return &Error{
		Code: CodeInvalidParams,
		Text: fmt.Sprintf("invalid parameters: caller='%s' error='invalid enum value for property %s", caller, path),
	}
}

const (
	enumPathQuery      = "'op' for property 'where' for property 'query''"
	enumPathOperations = "'method' for property 'operations''"
)

// JSONFormatError is the response to params that are not a JSON object.
func JSONFormatError() Response {
	return errJSON.Response()
}
