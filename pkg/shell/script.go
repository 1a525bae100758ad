package shell

import (
	"encoding/json"
	"errors"

	"src.sel.sh/pkg/diag"
)

// An auxiliary struct for converting errors with diagnostics information to JSON.
type errorInJSON struct {
	FileName string `json:"fileName,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Message  string `json:"message"`
}

// Converts parse, compilation and evaluation errors into JSON. Errors without
// a location have zero positions.
func errorsToJSON(err error) []byte {
	converted := []errorInJSON{}
	for _, e := range diag.Errors(err) {
		var located diag.Located
		if errors.As(e, &located) {
			ctx := located.Location()
			converted = append(converted, errorInJSON{
				ctx.Name, located.Kind(), ctx.From, ctx.To, located.Msg()})
		} else {
			converted = append(converted, errorInJSON{Message: e.Error()})
		}
	}

	jsonError, errMarshal := json.Marshal(converted)
	if errMarshal != nil {
		return []byte(`[{"message":"Unable to convert the errors to JSON"}]`)
	}
	return jsonError
}
