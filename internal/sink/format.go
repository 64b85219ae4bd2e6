package sink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// formatCell renders one column value. Times become fractional epoch
// seconds, lists become JSON arrays and nil becomes an empty field.
func formatCell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		secs := float64(t.Unix()) + float64(t.Nanosecond())/1e9
		return strconv.FormatFloat(secs, 'f', -1, 64)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case []string:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return fmt.Sprint(v)
}
