package marketdata_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"dividendquotes/internal/marketdata"
	"dividendquotes/internal/provider/yahoo"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want marketdata.Kind
	}{
		{"rate limit exceeded", marketdata.KindRateLimited},
		{"Too Many Requests", marketdata.KindRateLimited},
		{"Invalid symbol: XYZ", marketdata.KindInvalidSymbol},
		{"not found: No fundamentals data found for any of the summaryTypes=price", marketdata.KindInvalidSymbol},
		{"Network Error", marketdata.KindNetwork},
		{"dial tcp: connection refused", marketdata.KindNetwork},
		{"lookup query1.finance.yahoo.com: no such host", marketdata.KindNetwork},
		{"request timeout", marketdata.KindTimeout},
		{"i/o timed out", marketdata.KindTimeout},
		{"context deadline exceeded", marketdata.KindTimeout},
		{"Invalid Crumb", marketdata.KindInvalidCredential},
		{"invalid crumb", marketdata.KindServer},
		{"Invalid Crumb provided", marketdata.KindServer},
		{"something exploded", marketdata.KindServer},
		{"", marketdata.KindServer},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			require.Equal(t, tt.want, marketdata.ClassifyMessage(tt.msg))
		})
	}
}

func TestClassify_FirstRuleWins(t *testing.T) {
	// Matches both the rate-limit and the network wording.
	require.Equal(t, marketdata.KindRateLimited, marketdata.ClassifyMessage("network rate limit"))
}

func TestClassify_Nil(t *testing.T) {
	require.Equal(t, marketdata.KindServer, marketdata.Classify(nil))
}

func TestClassify_WrappedInvalidCrumb(t *testing.T) {
	err := fmt.Errorf("quote summary AAPL: %w", yahoo.ErrInvalidCrumb)
	require.Equal(t, marketdata.KindInvalidCredential, marketdata.Classify(err))
	require.Equal(t, marketdata.KindInvalidCredential, marketdata.Classify(yahoo.ErrInvalidCrumb))
}

func TestClassify_ContextErrors(t *testing.T) {
	require.Equal(t, marketdata.KindTimeout, marketdata.Classify(context.DeadlineExceeded))
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "InvalidCredential", marketdata.KindInvalidCredential.String())
	require.Equal(t, "Server", marketdata.Kind(99).String())

	b, err := marketdata.KindRateLimited.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "RateLimited", string(b))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid argument", fmt.Errorf("%w: symbol is required", marketdata.ErrInvalidArgument), http.StatusBadRequest},
		{"invalid symbol", errors.New("not found: XYZ"), http.StatusNotFound},
		{"rate limited", errors.New("Too Many Requests"), http.StatusTooManyRequests},
		{"network", errors.New("connection reset"), http.StatusInternalServerError},
		{"invalid crumb", yahoo.ErrInvalidCrumb, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, marketdata.HTTPStatus(tt.err))
		})
	}
}
