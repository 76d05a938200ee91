package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeField(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantValue string
		wantField string
		wantOK    bool
	}{
		{"complete", `{"code":"x = 1"}`, "x = 1", "code", true},
		{"whitespace around colon", `{ "code" :  "y"}`, "y", "code", true},
		{"truncated value", `{"code": "for i in ra`, "for i in ra", "code", true},
		{"truncated after colon", `{"code": `, "", "code", true},
		{"truncated before colon", `{"code"`, "", "", false},
		{"escapes decoded", `{"code":"a\n\tb \"q\" c\\d"}`, "a\n\tb \"q\" c\\d", "code", true},
		{"trailing quote inside code", `{"code":"s = '\"'"}`, `s = '"'`, "code", true},
		{"truncated escape dropped", `{"code":"line\`, "line", "code", true},
		{"unicode escape", `{"sql":"caf\u00e9"}`, "café", "sql", true},
		{"truncated unicode escape", `{"sql":"caf\u00`, "caf", "sql", true},
		{"surrogate pair", `{"code":"\ud83d\ude00"}`, "😀", "code", true},
		{"surrogate pair truncated", `{"code":"x\ud83d\ud`, "x", "code", true},
		{"later key", `{"explanation":"uses code","code":"z"}`, "z", "code", true},
		{"value named code is not a key", `{"lang":"code","sql":"s"}`, "s", "sql", true},
		{"escaped key text inside value", `{"note":"\"code\": \"no\"","code":"yes"}`, "yes", "code", true},
		{"non-string value skipped", `{"code": 5, "sql": "q"}`, "q", "sql", true},
		{"no field", `{"query":"x"}`, "", "", false},
		{"not json", "plain words", "", "", false},
		{"empty", "", "", "", false},
		{"first field wins", `{"sql":"a","code":"b"}`, "a", "sql", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, field, ok := ExtractCodeField(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantField, field)
		})
	}
}
