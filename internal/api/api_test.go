package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/erazemk/trznica/internal/db"
	"github.com/erazemk/trznica/internal/event"
	"github.com/erazemk/trznica/internal/model"
	"github.com/erazemk/trznica/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test-secret"

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret, event.LogEmitter{})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, database
}

// newUser creates an account and logs it in, returning its bearer token.
func newUser(t *testing.T, server *httptest.Server, database *sql.DB, username, role string) string {
	t.Helper()

	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if _, err := store.CreateUser(context.Background(), database, username, string(hash), role); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}

	body, _ := json.Marshal(map[string]string{"username": username, "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed for %s: %d", username, resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp["token"] == "" {
		t.Fatal("empty token from login")
	}
	return loginResp["token"]
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do performs an authenticated request, asserts the status code and decodes
// the response into out (which may be nil).
func do(t *testing.T, method, url, token string, body any, wantStatus int, out any) {
	t.Helper()

	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		t.Fatalf("%s %s: expected %d, got %d (%v)", method, url, wantStatus, resp.StatusCode, errBody)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func listItem(t *testing.T, server *httptest.Server, token, name, transactionType string, priceCents int64) *model.Item {
	t.Helper()
	var item model.Item
	do(t, "POST", server.URL+"/api/items", token, map[string]any{
		"name":             name,
		"transaction_type": transactionType,
		"price_cents":      priceCents,
	}, http.StatusCreated, &item)
	return &item
}

func TestLoginEndpoint(t *testing.T) {
	server, database := setupTestServer(t)
	newUser(t, server, database, "ana", model.RoleResident)

	body, _ := json.Marshal(map[string]string{"username": "ana", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _ := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestItemsAPIFlow(t *testing.T) {
	server, database := setupTestServer(t)
	owner := newUser(t, server, database, "owner", model.RoleResident)
	other := newUser(t, server, database, "other", model.RoleResident)

	item := listItem(t, server, owner, "Ladder", model.TypeSell, 2500)
	if item.Status != model.ItemStatusAvailable {
		t.Errorf("expected available, got %q", item.Status)
	}

	var items []model.Item
	do(t, "GET", server.URL+"/api/items", other, nil, http.StatusOK, &items)
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}

	// Only the owner may edit or delete a listing.
	url := server.URL + "/api/items/" + itoa(item.ID)
	do(t, "PUT", url, other, map[string]any{"name": "Hijacked"}, http.StatusForbidden, nil)
	do(t, "PUT", url, owner, map[string]any{"name": "Tall ladder", "price_cents": 3000}, http.StatusOK, nil)
	do(t, "DELETE", url, other, nil, http.StatusForbidden, nil)
}

func TestSellLifecycleHTTP(t *testing.T) {
	server, database := setupTestServer(t)
	seller := newUser(t, server, database, "seller", model.RoleResident)
	buyer := newUser(t, server, database, "buyer", model.RoleResident)
	rival := newUser(t, server, database, "rival", model.RoleResident)

	item := listItem(t, server, seller, "Ladder", model.TypeSell, 2500)

	// Owner cannot request their own item.
	do(t, "POST", server.URL+"/api/transactions", seller,
		map[string]any{"item_id": item.ID}, http.StatusBadRequest, nil)

	var tx model.Transaction
	do(t, "POST", server.URL+"/api/transactions", buyer,
		map[string]any{"item_id": item.ID}, http.StatusCreated, &tx)
	if tx.Status != model.TxPending {
		t.Fatalf("expected pending, got %q", tx.Status)
	}

	// The item is reserved, so a second request conflicts.
	do(t, "POST", server.URL+"/api/transactions", rival,
		map[string]any{"item_id": item.ID}, http.StatusConflict, nil)

	base := server.URL + "/api/transactions/" + itoa(tx.ID)

	// Only the seller proposes; the buyer trying gets 403.
	proposal := map[string]any{
		"pickup_at":       time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"pickup_location": "town square",
	}
	do(t, "POST", base+"/propose", buyer, proposal, http.StatusForbidden, nil)
	do(t, "POST", base+"/propose", seller, proposal, http.StatusOK, &tx)
	if tx.Status != model.TxAwaitingBuyer {
		t.Fatalf("expected awaiting_buyer, got %q", tx.Status)
	}

	// Legacy alias for confirm still works.
	do(t, "POST", base+"/accept", buyer, nil, http.StatusOK, &tx)
	if tx.Status != model.TxAccepted {
		t.Fatalf("expected accepted, got %q", tx.Status)
	}

	// Handover needs both parties, in either order.
	do(t, "POST", base+"/handover", seller, nil, http.StatusOK, &tx)
	if tx.Status != model.TxAccepted {
		t.Fatalf("one witness must not advance, got %q", tx.Status)
	}
	do(t, "POST", base+"/handover", buyer, nil, http.StatusOK, &tx)
	if tx.Status != model.TxHandedOver {
		t.Fatalf("expected handed_over, got %q", tx.Status)
	}

	do(t, "POST", base+"/complete", seller, nil, http.StatusOK, &tx)
	if tx.Status != model.TxCompleted {
		t.Fatalf("expected completed, got %q", tx.Status)
	}

	// Sold items leave the pool for good.
	var got model.Item
	do(t, "GET", server.URL+"/api/items/"+itoa(item.ID), seller, nil, http.StatusOK, &got)
	if got.Status != model.ItemStatusUnavailable {
		t.Errorf("expected unavailable, got %q", got.Status)
	}

	// The trail is visible to parties but not outsiders.
	var entries []model.AuditEntry
	do(t, "GET", base+"/audit", buyer, nil, http.StatusOK, &entries)
	if len(entries) != 6 {
		t.Errorf("expected 6 audit entries, got %d", len(entries))
	}
	do(t, "GET", base+"/audit", rival, nil, http.StatusForbidden, nil)
	do(t, "GET", base, rival, nil, http.StatusForbidden, nil)
}

func TestLendLifecycleHTTP(t *testing.T) {
	server, database := setupTestServer(t)
	lender := newUser(t, server, database, "lender", model.RoleResident)
	borrower := newUser(t, server, database, "borrower", model.RoleResident)

	item := listItem(t, server, lender, "Drill", model.TypeLend, 0)

	var tx model.Transaction
	do(t, "POST", server.URL+"/api/transactions", borrower,
		map[string]any{"item_id": item.ID}, http.StatusCreated, &tx)
	base := server.URL + "/api/transactions/" + itoa(tx.ID)

	do(t, "POST", base+"/propose", lender, map[string]any{
		"pickup_at":       time.Now().Add(time.Hour).Format(time.RFC3339),
		"pickup_location": "tool shed",
	}, http.StatusOK, nil)
	do(t, "POST", base+"/confirm", borrower, nil, http.StatusOK, nil)
	do(t, "POST", base+"/handover", lender, nil, http.StatusOK, nil)
	do(t, "POST", base+"/handover", borrower, nil, http.StatusOK, nil)

	// A lend cannot complete before the item comes back.
	do(t, "POST", base+"/complete", lender, nil, http.StatusConflict, nil)

	do(t, "POST", base+"/return", borrower, nil, http.StatusOK, nil)
	do(t, "POST", base+"/return", lender, nil, http.StatusOK, &tx)
	if tx.Status != model.TxReturned {
		t.Fatalf("expected returned, got %q", tx.Status)
	}

	do(t, "POST", base+"/complete", lender, nil, http.StatusOK, &tx)
	if tx.Status != model.TxCompleted {
		t.Fatalf("expected completed, got %q", tx.Status)
	}

	// Returned items go back on offer.
	var got model.Item
	do(t, "GET", server.URL+"/api/items/"+itoa(item.ID), lender, nil, http.StatusOK, &got)
	if got.Status != model.ItemStatusAvailable {
		t.Errorf("expected available, got %q", got.Status)
	}
}

func TestDisputeResolutionHTTP(t *testing.T) {
	server, database := setupTestServer(t)
	seller := newUser(t, server, database, "seller", model.RoleResident)
	buyer := newUser(t, server, database, "buyer", model.RoleResident)
	admin := newUser(t, server, database, "admin", model.RoleAdmin)

	item := listItem(t, server, seller, "Ladder", model.TypeSell, 2500)

	var tx model.Transaction
	do(t, "POST", server.URL+"/api/transactions", buyer,
		map[string]any{"item_id": item.ID}, http.StatusCreated, &tx)
	base := server.URL + "/api/transactions/" + itoa(tx.ID)

	// A dispute needs a reason.
	do(t, "POST", base+"/dispute", buyer, map[string]any{"reason": ""}, http.StatusBadRequest, nil)
	do(t, "POST", base+"/dispute", buyer, map[string]any{"reason": "no show"}, http.StatusOK, &tx)
	if tx.Status != model.TxDisputed {
		t.Fatalf("expected disputed, got %q", tx.Status)
	}

	// Parties cannot resolve, only admins.
	do(t, "POST", base+"/resolve", seller,
		map[string]any{"outcome": "rejected"}, http.StatusForbidden, nil)
	do(t, "POST", base+"/resolve", admin,
		map[string]any{"outcome": "rejected", "notes": "buyer withdrew"}, http.StatusOK, &tx)
	if tx.Status != model.TxRejected {
		t.Fatalf("expected rejected, got %q", tx.Status)
	}

	// Resolution frees the item.
	var got model.Item
	do(t, "GET", server.URL+"/api/items/"+itoa(item.ID), seller, nil, http.StatusOK, &got)
	if got.Status != model.ItemStatusAvailable {
		t.Errorf("expected available, got %q", got.Status)
	}

	// Admins can read the trail without being a party.
	var entries []model.AuditEntry
	do(t, "GET", base+"/audit", admin, nil, http.StatusOK, &entries)
	if len(entries) != 3 {
		t.Errorf("expected 3 audit entries, got %d", len(entries))
	}
}

func TestListMineEndpoint(t *testing.T) {
	server, database := setupTestServer(t)
	seller := newUser(t, server, database, "seller", model.RoleResident)
	buyer := newUser(t, server, database, "buyer", model.RoleResident)

	item := listItem(t, server, seller, "Ladder", model.TypeSell, 2500)
	do(t, "POST", server.URL+"/api/transactions", buyer,
		map[string]any{"item_id": item.ID}, http.StatusCreated, nil)

	var mine struct {
		AsBuyer  []model.Transaction `json:"as_buyer"`
		AsSeller []model.Transaction `json:"as_seller"`
	}
	do(t, "GET", server.URL+"/api/transactions", buyer, nil, http.StatusOK, &mine)
	if len(mine.AsBuyer) != 1 || len(mine.AsSeller) != 0 {
		t.Errorf("unexpected buyer listing: %+v", mine)
	}
	do(t, "GET", server.URL+"/api/transactions", seller, nil, http.StatusOK, &mine)
	if len(mine.AsSeller) != 1 || len(mine.AsBuyer) != 0 {
		t.Errorf("unexpected seller listing: %+v", mine)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	server, database := setupTestServer(t)
	resident := newUser(t, server, database, "resident", model.RoleResident)

	req, _ := authRequest("GET", server.URL+"/api/users", resident, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for resident accessing users, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	server, database := setupTestServer(t)
	token := newUser(t, server, database, "ana", model.RoleResident)

	do(t, "POST", server.URL+"/api/auth/logout", token, nil, http.StatusOK, nil)

	req, _ := authRequest("GET", server.URL+"/api/items", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
