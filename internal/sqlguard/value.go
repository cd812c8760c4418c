package sqlguard

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/oltiss/mattermost-bot/pkg/types"
)

// toValue converts one decoded column value into a [types.Value]. Types
// without a natural JSON form fall back to text: times as RFC 3339, UUIDs in
// canonical form, anything else through its JSON, driver or fmt form.
func toValue(x any) types.Value {
	switch v := x.(type) {
	case nil:
		return types.Null()
	case types.Value:
		return v
	case bool:
		return types.Bool(v)
	case string:
		return types.String(v)
	case int:
		return types.Int(int64(v))
	case int8:
		return types.Int(int64(v))
	case int16:
		return types.Int(int64(v))
	case int32:
		return types.Int(int64(v))
	case int64:
		return types.Int(v)
	case uint8:
		return types.Int(int64(v))
	case uint16:
		return types.Int(int64(v))
	case uint32:
		return types.Int(int64(v))
	case uint64:
		return types.String(fmt.Sprint(v))
	case float32:
		return types.Number(float64(v))
	case float64:
		return types.Number(v)
	case *big.Int:
		return types.String(v.String())
	case time.Time:
		return types.String(v.Format(time.RFC3339Nano))
	case [16]byte:
		return types.String(uuid.UUID(v).String())
	case []byte:
		if utf8.Valid(v) {
			return types.String(string(v))
		}
		return types.String(base64.StdEncoding.EncodeToString(v))
	case []any:
		items := make([]types.Value, len(v))
		for i, it := range v {
			items[i] = toValue(it)
		}
		return types.Array(items...)
	case map[string]any:
		if out, err := types.FromAny(v); err == nil {
			return out
		}
	case json.Marshaler:
		if b, err := v.MarshalJSON(); err == nil {
			if out, err := types.Parse(b); err == nil {
				return out
			}
		}
	case driver.Valuer:
		if dv, err := v.Value(); err == nil {
			if _, same := dv.(driver.Valuer); !same {
				return toValue(dv)
			}
		}
	case fmt.Stringer:
		return types.String(v.String())
	}
	return types.String(fmt.Sprint(x))
}
