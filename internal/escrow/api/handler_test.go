package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-escrow/internal/config"
	"ms-escrow/internal/escrow"
	"ms-escrow/internal/escrow/api"
	"ms-escrow/internal/keys"
	"ms-escrow/internal/ledger"
	"ms-escrow/internal/qr"
	"ms-escrow/internal/token"
	"ms-escrow/internal/utils"
)

func setupAPI(t *testing.T) (*httptest.Server, *ledger.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	db := ledger.New(bun.NewDB(sqldb, sqlitedialect.New()))
	require.NoError(t, db.Init(context.Background()))

	svc := escrow.NewService(db, token.NewLedgerMinter(), nil, nil)
	handler := api.NewHandler(svc, nil, qr.NewGenerator("test-secret"), nil, config.FaucetConfig{
		Enabled:    true,
		MaxAirdrop: 10_000_000_000,
	})

	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv, db
}

func bearerFor(t *testing.T, addr keys.Address) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": addr.String()})
	signed, err := tok.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doJSON(t *testing.T, method, url, bearer string, body any) (*http.Response, utils.APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func fundedAddress(t *testing.T, srv *httptest.Server, lamports uint64) *keys.Keypair {
	t.Helper()
	kp, err := keys.NewKeypair()
	require.NoError(t, err)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/airdrop", "", map[string]any{
		"address": kp.Public.String(),
		"amount":  lamports,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, body.Success)
	return kp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupAPI(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
}

func TestCreateEventRequiresAuth(t *testing.T) {
	srv, _ := setupAPI(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/events", "", map[string]any{
		"event_id": 1, "price": 0, "title": "t", "description": "d",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestCreateAndGetEvent(t *testing.T) {
	srv, _ := setupAPI(t)
	organizer := fundedAddress(t, srv, 10_000_000_000)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), map[string]any{
		"event_id":    1,
		"price":       1_000_000_000,
		"title":       "Hello Event!",
		"description": "Welcome to my new test event!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, body.Success)

	data := body.Data.(map[string]any)
	addr := data["address"].(string)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/events/"+addr, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := body.Data.(map[string]any)
	event := summary["event"].(map[string]any)
	assert.Equal(t, "Hello Event!", event["title"])
	assert.Equal(t, float64(1_000_000_000), event["price"])
	assert.Equal(t, organizer.Public.String(), event["organizer"])
}

func TestCreateEventDuplicateConflict(t *testing.T) {
	srv, _ := setupAPI(t)
	organizer := fundedAddress(t, srv, 10_000_000_000)
	req := map[string]any{"event_id": 1, "price": 0, "title": "Once", "description": "d"}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_INITIALIZED", body.Code)
}

func TestGetEventNotFound(t *testing.T) {
	srv, _ := setupAPI(t)
	ghost, err := keys.NewKeypair()
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/events/"+ghost.Public.String(), "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_EVENT_REFERENCE", body.Code)
}

func TestJoinCheckInWithdrawFlow(t *testing.T) {
	srv, db := setupAPI(t)
	organizer := fundedAddress(t, srv, 10_000_000_000)
	buyer := fundedAddress(t, srv, 10_000_000_000)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), map[string]any{
		"event_id": 1, "price": 1_000_000_000, "title": "Paid", "description": "d",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eventAddr := body.Data.(map[string]any)["address"].(string)

	// Join with no mint supplied: the handler prepares one.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/join", bearerFor(t, buyer.Public), map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	joined := body.Data.(map[string]any)
	ticketAddr := joined["address"].(string)
	assert.NotEmpty(t, joined["mint"])

	// Escrow now holds the price on top of rent.
	parsed, err := keys.Parse(eventAddr)
	require.NoError(t, err)
	acct, err := db.GetAccount(context.Background(), parsed)
	require.NoError(t, err)
	rent := ledger.MinimumBalance(len(acct.Data))
	assert.Equal(t, rent+1_000_000_000, acct.Lamports)

	// A second join conflicts.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/join", bearerFor(t, buyer.Public), map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_INITIALIZED", body.Code)

	// Only the organizer may check in.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/checkin", bearerFor(t, buyer.Public), map[string]any{
		"ticket": ticketAddr,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED_SIGNER", body.Code)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/checkin", bearerFor(t, organizer.Public), map[string]any{
		"ticket": ticketAddr,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/checkin", bearerFor(t, organizer.Public), map[string]any{
		"ticket": ticketAddr,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_CHECKED_IN", body.Code)

	// Withdraw more than available: clamped to the full 1 SOL.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/withdraw", bearerFor(t, organizer.Public), map[string]any{
		"amount": 5_000_000_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1_000_000_000), body.Data.(map[string]any)["amount"])

	acct, err = db.GetAccount(context.Background(), parsed)
	require.NoError(t, err)
	assert.Equal(t, rent, acct.Lamports)
}

func TestWithdrawRejectsNonOrganizer(t *testing.T) {
	srv, _ := setupAPI(t)
	organizer := fundedAddress(t, srv, 10_000_000_000)
	stranger := fundedAddress(t, srv, 10_000_000_000)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), map[string]any{
		"event_id": 1, "price": 0, "title": "Mine", "description": "d",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eventAddr := body.Data.(map[string]any)["address"].(string)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/withdraw", bearerFor(t, stranger.Public), map[string]any{
		"amount": 100,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED_SIGNER", body.Code)
}

func TestTicketQREndpoint(t *testing.T) {
	srv, _ := setupAPI(t)
	organizer := fundedAddress(t, srv, 10_000_000_000)
	attendee := fundedAddress(t, srv, 10_000_000_000)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), map[string]any{
		"event_id": 1, "price": 0, "title": "Free", "description": "d",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eventAddr := body.Data.(map[string]any)["address"].(string)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/events/"+eventAddr+"/tickets", bearerFor(t, attendee.Public), map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticketAddr := body.Data.(map[string]any)["address"].(string)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/tickets/"+ticketAddr+"/qr", nil)
	require.NoError(t, err)
	qrResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer qrResp.Body.Close()

	assert.Equal(t, http.StatusOK, qrResp.StatusCode)
	assert.Equal(t, "image/png", qrResp.Header.Get("Content-Type"))
}

func TestAirdropValidation(t *testing.T) {
	srv, _ := setupAPI(t)
	kp, err := keys.NewKeypair()
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/airdrop", "", map[string]any{
		"address": kp.Public.String(),
		"amount":  0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, body.Success)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/airdrop", "", map[string]any{
		"address": "not-an-address",
		"amount":  100,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOrganizerEvents(t *testing.T) {
	srv, _ := setupAPI(t)
	organizer := fundedAddress(t, srv, 10_000_000_000)

	for i := 1; i <= 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/events", bearerFor(t, organizer.Public), map[string]any{
			"event_id": i, "price": 0, "title": fmt.Sprintf("Event %d", i), "description": "d",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/organizers/"+organizer.Public.String()+"/events", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Data.([]any), 2)
}
