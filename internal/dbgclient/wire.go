package dbgclient

// PathPrefix is the URL prefix of every protocol endpoint.
const PathPrefix = "/jsdbg-server/"

// Protocol operations. Each is also the last path segment of its endpoint.
const (
	OpPointerSize   = "pointersize"
	OpTypeSize      = "typesize"
	OpFieldOffset   = "fieldoffset"
	OpTypeFields    = "typefields"
	OpBaseTypes     = "basetypes"
	OpIsEnum        = "isenum"
	OpConstantName  = "constantname"
	OpConstantValue = "constantvalue"
	OpSymbolName    = "symbolname"
	OpGlobalSymbol  = "global"
	OpReadNumber    = "memory"
	OpReadArray     = "array"
)

// ErrorResponse is the payload the service returns instead of a result.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PointerSizeResponse is the result of OpPointerSize.
type PointerSizeResponse struct {
	PointerSize int `json:"pointerSize"`
}

// SizeResponse is the result of OpTypeSize.
type SizeResponse struct {
	Size int64 `json:"size"`
}

// FieldsResponse is the result of OpTypeFields.
type FieldsResponse struct {
	Fields []TypeField `json:"fields"`
}

// BaseTypesResponse is the result of OpBaseTypes.
type BaseTypesResponse struct {
	BaseTypes []BaseType `json:"baseTypes"`
}

// IsEnumResponse is the result of OpIsEnum.
type IsEnumResponse struct {
	IsEnum bool `json:"isEnum"`
}

// NamesResponse is the result of OpConstantName.
type NamesResponse struct {
	Names []string `json:"names"`
}

// ValueResponse is the result of OpConstantValue and OpReadNumber.
type ValueResponse struct {
	Value uint64 `json:"value"`
}

// ArrayResponse is the result of OpReadArray.
type ArrayResponse struct {
	Array []uint64 `json:"array"`
}
