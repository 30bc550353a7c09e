package binance

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", errors.New("connection reset"), true},
		{"disconnected", &APIError{StatusCode: 500, Code: -1001}, true},
		{"rate limited code", &APIError{StatusCode: 429, Code: -1003}, true},
		{"bad timestamp", &APIError{StatusCode: 400, Code: -1021}, false},
		{"bad signature", &APIError{StatusCode: 400, Code: -1022}, false},
		{"invalid api key", &APIError{StatusCode: 401, Code: -2015}, false},
		{"bad precision", &APIError{StatusCode: 400, Code: -1111}, false},
		{"unknown order", &APIError{StatusCode: 400, Code: -2011}, false},
		{"ip banned 418", &APIError{StatusCode: 418, Code: -9999}, true},
		{"server error", &APIError{StatusCode: 503, Code: -9999}, true},
		{"plain bad request", &APIError{StatusCode: 400, Code: -9999}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryable(tc.err); got != tc.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsUnknownOrder(t *testing.T) {
	raw := &APIError{StatusCode: 400, Code: -2011, Msg: "Unknown order sent."}
	wrapped := fmt.Errorf("error canceling order: %w", raw)

	if !IsUnknownOrder(raw) || !IsUnknownOrder(wrapped) {
		t.Error("unknown-order error not recognized")
	}
	if IsUnknownOrder(&APIError{Code: -1021}) {
		t.Error("bad-timestamp error misclassified as unknown order")
	}
	if IsUnknownOrder(errors.New("boom")) {
		t.Error("plain error misclassified as unknown order")
	}
}

func TestParseAPIError(t *testing.T) {
	err := parseAPIError(400, []byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	if err.Code != -2011 || err.Msg != "Unknown order sent." || err.StatusCode != 400 {
		t.Errorf("parsed error = %+v", err)
	}

	raw := parseAPIError(502, []byte("<html>bad gateway</html>"))
	if raw.Msg != "<html>bad gateway</html>" {
		t.Errorf("non-JSON body not preserved: %+v", raw)
	}
}

func TestRetryDelayDoubles(t *testing.T) {
	if retryDelay(baseRetryDelay, 0) != baseRetryDelay {
		t.Errorf("delay(0) = %v", retryDelay(baseRetryDelay, 0))
	}
	if retryDelay(baseRetryDelay, 1) != 2*baseRetryDelay {
		t.Errorf("delay(1) = %v", retryDelay(baseRetryDelay, 1))
	}
	if retryDelay(baseRetryDelay, 2) != 4*baseRetryDelay {
		t.Errorf("delay(2) = %v", retryDelay(baseRetryDelay, 2))
	}
}
