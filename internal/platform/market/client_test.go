package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionsvault/internal/crypto"
	"github.com/alanyoungcy/optionsvault/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	signer, err := crypto.NewSigner(testKeyHex, 137)
	require.NoError(t, err)
	return signer
}

func testOrder() domain.OptionOrder {
	return domain.OptionOrder{
		Maker:           "0x1111111111111111111111111111111111111111",
		CollateralToken: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		Strikes:         []int64{2000_000000, 2100_000000},
		Expiry:          time.Now().Add(24 * time.Hour).Unix(),
		OrderExpiry:     time.Now().Add(time.Hour).Unix(),
		Price:           10_000000,
		MaxCollateral:   500_000000,
		Direction:       domain.DirectionShort,
		Side:            domain.OptionSideCall,
	}
}

func TestSubmitFillSuccess(t *testing.T) {
	var gotReq fillRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fills", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("VENUE-SIGNATURE"))
		assert.Equal(t, "test-key", r.Header.Get("VENUE-API-KEY"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(fillResponse{
			Success:        true,
			Premium:        9_000000,
			CollateralUsed: 100_000000,
			PositionRef:    "venue-42",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testSigner(t), &crypto.HMACAuth{
		Key: "test-key", Secret: "c2VjcmV0", Passphrase: "pass",
	})

	fill, err := client.SubmitFill(context.Background(), testOrder(), "0xsig", 100_000000, "corr-1")
	require.NoError(t, err)

	assert.Equal(t, int64(9_000000), fill.Premium)
	assert.Equal(t, int64(100_000000), fill.CollateralUsed)
	assert.Equal(t, "venue-42", fill.ExternalRef)

	assert.Equal(t, "0xsig", gotReq.Signature)
	assert.Equal(t, "corr-1", gotReq.CorrelationID)
	assert.Equal(t, int64(100_000000), gotReq.Collateral)
	assert.Equal(t, "short", gotReq.Order.Direction)
}

func TestSubmitFillRejected(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "explicit rejection",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(fillResponse{Success: false, ErrorMsg: "offer no longer open"})
			},
		},
		{
			name: "unprocessable entity",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "bad order", http.StatusUnprocessableEntity)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(srv.URL, testSigner(t), &crypto.HMACAuth{Key: "k", Secret: "cw==", Passphrase: "p"})
			_, err := client.SubmitFill(context.Background(), testOrder(), "0xsig", 1, "c")
			assert.ErrorIs(t, err, domain.ErrMarketRejected)
		})
	}
}

func TestSubmitFillUnavailable(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, testSigner(t), nil)
		_, err := client.SubmitFill(context.Background(), testOrder(), "0xsig", 1, "c")
		assert.ErrorIs(t, err, domain.ErrMarketUnavailable)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close() // shut down before the request

		client := NewClient(srv.URL, testSigner(t), nil)
		_, err := client.SubmitFill(context.Background(), testOrder(), "0xsig", 1, "c")
		assert.ErrorIs(t, err, domain.ErrMarketUnavailable)
	})
}

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("VENUE-ADDRESS"))
		assert.NotEmpty(t, r.Header.Get("VENUE-SIGNATURE"))
		assert.NotEmpty(t, r.Header.Get("VENUE-TIMESTAMP"))

		json.NewEncoder(w).Encode(map[string]string{
			"apiKey":     "derived-key",
			"secret":     "ZGVyaXZlZA==",
			"passphrase": "derived-pass",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testSigner(t), nil)
	require.NoError(t, client.Authenticate(context.Background()))
	require.NotNil(t, client.hmacAuth)
	assert.Equal(t, "derived-key", client.hmacAuth.Key)
}

func TestOrderRoundTrip(t *testing.T) {
	order := testOrder()
	order.ExtraData = []byte{0xde, 0xad, 0xbe, 0xef}

	back := toAPIOrder(order).toDomainOrder()
	assert.Equal(t, order, back)
}
