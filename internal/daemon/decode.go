package daemon

import (
	"encoding/json"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// decodeResult re-marshals an `any`-typed RPC result field into a concrete
// type T, since encoding/json decodes Response.Result as map[string]any
// without a registered schema.
func decodeResult[T any](raw any) (T, error) {
	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return out, casserrors.Wrap(casserrors.KindFailed, "re-marshal rpc result", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, casserrors.Wrap(casserrors.KindFailed, "decode rpc result", err)
	}
	return out, nil
}
