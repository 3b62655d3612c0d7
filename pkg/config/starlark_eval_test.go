package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStarlarkEvaluate(t *testing.T) {
	se := NewStarlarkEvaluator(time.Second)

	script := `
_private = 1

def double(n):
    return n * 2

hoods = [h.upper() for h in districts]
size = double(len(districts))
point = struct(x = 1, y = 2.5)
pair = (True, None)
`
	result, err := se.Evaluate(context.Background(), "test.star", script, map[string]interface{}{
		"districts": []string{"harbor", "downtown"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	want := map[string]interface{}{
		"hoods": []interface{}{"HARBOR", "DOWNTOWN"},
		"size":  int64(4),
		"point": map[string]interface{}{"x": int64(1), "y": 2.5},
		"pair":  []interface{}{true, nil},
	}
	if diff := cmp.Diff(want, result.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestStarlarkEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		input  map[string]interface{}
	}{
		{name: "syntax", script: "x = ("},
		{name: "runtime", script: "x = 1 // 0"},
		{name: "unsupported input", script: "x = 1", input: map[string]interface{}{"ch": make(chan int)}},
		{name: "non-string dict key", script: "x = {1: 2}"},
	}

	se := NewStarlarkEvaluator(time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := se.Evaluate(context.Background(), "bad.star", tt.script, tt.input); err == nil {
				t.Error("Evaluate() succeeded, want error")
			}
		})
	}
}

func TestStarlarkEvaluateTimeout(t *testing.T) {
	se := NewStarlarkEvaluator(50 * time.Millisecond)
	script := `
def spin():
    n = 0
    for i in range(1000000000):
        n += 1
    return n

x = spin()
`
	_, err := se.Evaluate(context.Background(), "spin.star", script, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Evaluate() error = %v, want deadline exceeded", err)
	}
}
