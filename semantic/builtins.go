package semantic

import "github.com/webql/webql/types"

// builtinReturnTypes is the closed dictionary of built-in function return
// types consulted by CALL type inference before falling back to the symbol
// table for user-defined functions.
var builtinReturnTypes = map[string]types.DataType{
	"UPPER":      types.STRING,
	"LOWER":      types.STRING,
	"TRIM":       types.STRING,
	"SUBSTRING":  types.STRING,
	"REPLACE":    types.STRING,
	"TEXT":       types.STRING,
	"HTML":       types.STRING,
	"ATTR":       types.STRING,
	"HEADER":     types.STRING,
	"BODY":       types.STRING,
	"COUNT":      types.NUMBER,
	"STATUS":     types.NUMBER,
	"EXISTS":     types.BOOLEAN,
	"CACHED":     types.BOOLEAN,
	"PARSE_JSON": types.OBJECT,
	"PARSE_HTML": types.DOCUMENT,
	"SCREENSHOT": types.BYTES,
	"PDF":        types.BYTES,
}

// nonDeterministicBuiltins are the functions the cacheability pass treats as
// disqualifying a statement from caching.
var nonDeterministicBuiltins = map[string]bool{
	"NOW": true, "CURRENT_TIME": true, "CURRENT_DATE": true,
	"RANDOM": true, "RAND": true, "UUID": true, "NEWID": true,
}

// IsNonDeterministic reports whether name is a non-deterministic built-in.
func IsNonDeterministic(name string) bool {
	return nonDeterministicBuiltins[name]
}
