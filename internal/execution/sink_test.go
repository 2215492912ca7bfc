package execution

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/web3guy0/curvesniper/internal/types"
)

func TestHTTPSink_SubmitPostsSignalBody(t *testing.T) {
	var received types.TradeSignal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL)
	sig := types.TradeSignal{Mint: "MINT1", Action: types.ActionBuy, Time: time.Unix(0, 0)}
	require.NoError(t, s.Submit(sig))
	require.Equal(t, types.TokenId("MINT1"), received.Mint)
}

func TestHTTPSink_SubmitRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL)
	err := s.Submit(types.TradeSignal{Mint: "MINT1", Action: types.ActionSell})
	require.Error(t, err)
	require.Equal(t, maxAttempts, calls)
}
