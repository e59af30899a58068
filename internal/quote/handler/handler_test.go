package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/sse"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/testutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupQuoteAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zaptest.NewLogger(t)
	svc := service.NewServices(repository.NewRepositories(db), nil, service.Options{ValidityDays: 30}, logger)
	h := NewHandlers(svc, sse.NewHub(logger), logger)

	r := testutil.SetupRouter()
	RegisterRoutes(testutil.AuthGroup(r, "/api/v1"), h)
	return r, db
}

func dataOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no data object: %v", resp)
	}
	return data
}

func expectCode(t *testing.T, status int, resp map[string]interface{}, wantStatus int, wantCode float64) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("expected HTTP %d, got %d: %v", wantStatus, status, resp)
	}
	if resp["code"] != wantCode {
		t.Fatalf("expected code %v, got %v (%v)", wantCode, resp["code"], resp["message"])
	}
}

func TestQuoteLifecycleOverHTTP(t *testing.T) {
	r, db := setupQuoteAPI(t)
	testutil.SeedVerifiedBusiness(t, db, "buyer-001")
	buyer := testutil.BuyerToken("buyer-001")
	admin := testutil.AdminToken()

	w := testutil.DoRequest(r, "POST", "/api/v1/quotes", map[string]interface{}{
		"company_name": "Skyline Lifts",
		"items": []map[string]interface{}{
			{"product_id": "prod-door-operator", "product_name": "Door operator", "quantity": 2},
		},
	}, buyer)
	resp := testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusCreated, 0)
	quoteID := dataOf(t, resp)["id"].(string)
	base := "/api/v1/quotes/" + quoteID

	w = testutil.DoRequest(r, "POST", base+"/submit", nil, buyer)
	resp = testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	quote := dataOf(t, resp)["quote"].(map[string]interface{})
	if quote["status"] != "pending" {
		t.Fatalf("expected pending, got %v", quote["status"])
	}

	adminBase := "/api/v1/admin/quotes/" + quoteID
	for _, step := range []struct {
		path string
		body interface{}
	}{
		{"/start-review", nil},
		{"/pricing", map[string]interface{}{"total": 12000}},
		{"/approve", map[string]interface{}{"notes": "standard discount"}},
	} {
		w = testutil.DoRequest(r, "POST", adminBase+step.path, step.body, admin)
		expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)
	}

	w = testutil.DoRequest(r, "GET", base+"/permissions", nil, buyer)
	resp = testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	perms := dataOf(t, resp)
	if perms["can_view_pricing"] != false || perms["can_convert_to_order"] != true {
		t.Fatalf("unexpected buyer permissions %v", perms)
	}

	w = testutil.DoRequest(r, "POST", adminBase+"/pricing-visibility", map[string]interface{}{"visible": true}, admin)
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)

	w = testutil.DoRequest(r, "GET", base, nil, buyer)
	resp = testutil.ParseResponse(w)
	view := dataOf(t, resp)
	if view["permissions"].(map[string]interface{})["can_view_pricing"] != true {
		t.Fatalf("pricing should be visible, got %v", view["permissions"])
	}
	if view["quote"].(map[string]interface{})["final_total"] != float64(12000) {
		t.Fatalf("expected final total, got %v", view["quote"])
	}

	w = testutil.DoRequest(r, "POST", base+"/convert", nil, buyer)
	resp = testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	converted := dataOf(t, resp)
	if converted["success"] != true || converted["quote"].(map[string]interface{})["status"] != "converted" {
		t.Fatalf("unexpected convert result %v", converted)
	}

	w = testutil.DoRequest(r, "POST", base+"/convert", nil, buyer)
	resp = testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusConflict, 40900)
	if !strings.Contains(resp["message"].(string), "terminal state") {
		t.Fatalf("unexpected message %v", resp["message"])
	}

	w = testutil.DoRequest(r, "GET", base+"/audit-log", nil, buyer)
	resp = testutil.ParseResponse(w)
	items := dataOf(t, resp)["items"].([]interface{})
	if len(items) != 7 {
		t.Fatalf("expected 7 audit entries, got %d", len(items))
	}
}

func TestConvertForbiddenForUnverifiedBusiness(t *testing.T) {
	r, db := setupQuoteAPI(t)
	testutil.SeedProfile(t, db, "buyer-002", entity.AccountBusiness, entity.VerificationPending)
	q := testutil.SeedQuote(t, db, "buyer-002", lifecycle.StatusApproved)

	w := testutil.DoRequest(r, "POST", "/api/v1/quotes/"+q.ID+"/convert", nil, testutil.BuyerToken("buyer-002"))
	resp := testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusForbidden, 40300)

	// verification takes effect on the next request
	w = testutil.DoRequest(r, "PUT", "/api/v1/admin/buyers/buyer-002/verification",
		map[string]interface{}{"status": "verified"}, testutil.AdminToken())
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)

	w = testutil.DoRequest(r, "POST", "/api/v1/quotes/"+q.ID+"/convert", nil, testutil.BuyerToken("buyer-002"))
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)
}

func TestAdminRejectsConvertedQuote(t *testing.T) {
	r, db := setupQuoteAPI(t)
	q := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusConverted)

	w := testutil.DoRequest(r, "POST", "/api/v1/admin/quotes/"+q.ID+"/reject",
		map[string]interface{}{"reason": "late change"}, testutil.AdminToken())
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusConflict, 40900)

	w = testutil.DoRequest(r, "POST", "/api/v1/admin/quotes/"+q.ID+"/reject", map[string]interface{}{}, testutil.AdminToken())
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusBadRequest, 40000)
}

func TestAccessControl(t *testing.T) {
	r, db := setupQuoteAPI(t)
	q := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusPending)

	w := testutil.DoRequest(r, "GET", "/api/v1/quotes/"+q.ID, nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/admin/quotes/"+q.ID+"/start-review", nil, testutil.BuyerToken("buyer-001"))
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusForbidden, 40312)

	w = testutil.DoRequest(r, "GET", "/api/v1/quotes/"+q.ID, nil, testutil.BuyerToken("buyer-999"))
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusNotFound, 40400)

	w = testutil.DoRequest(r, "GET", "/api/v1/quotes/"+q.ID, nil, testutil.AdminToken())
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)
}

func TestListQuotesPagination(t *testing.T) {
	r, db := setupQuoteAPI(t)
	for i := 0; i < 3; i++ {
		testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusPending)
	}
	testutil.SeedQuote(t, db, "buyer-002", lifecycle.StatusPending)

	w := testutil.DoRequest(r, "GET", "/api/v1/quotes?page=1&page_size=2", nil, testutil.BuyerToken("buyer-001"))
	resp := testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	pagination := dataOf(t, resp)["pagination"].(map[string]interface{})
	if pagination["total"] != float64(3) || pagination["total_pages"] != float64(2) {
		t.Fatalf("unexpected pagination %v", pagination)
	}

	w = testutil.DoRequest(r, "GET", "/api/v1/admin/quotes?status=pending", nil, testutil.AdminToken())
	resp = testutil.ParseResponse(w)
	if dataOf(t, resp)["pagination"].(map[string]interface{})["total"] != float64(4) {
		t.Fatalf("admin should see all pending quotes: %v", resp)
	}
}

func TestBasketOverHTTP(t *testing.T) {
	r, _ := setupQuoteAPI(t)
	buyer := testutil.BuyerToken("buyer-001")

	for i := 0; i < 2; i++ {
		w := testutil.DoRequest(r, "POST", "/api/v1/basket/items",
			map[string]interface{}{"product_id": "prod-rope", "quantity": 3}, buyer)
		expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)
	}

	w := testutil.DoRequest(r, "GET", "/api/v1/basket", nil, buyer)
	resp := testutil.ParseResponse(w)
	items := dataOf(t, resp)["items"].([]interface{})
	if len(items) != 1 || items[0].(map[string]interface{})["quantity"] != float64(6) {
		t.Fatalf("expected one merged line of 6, got %v", items)
	}
	lineID := items[0].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(r, "PUT", "/api/v1/basket/items/"+lineID, map[string]interface{}{"quantity": 4}, buyer)
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusOK, 0)

	w = testutil.DoRequest(r, "PUT", "/api/v1/basket/items/missing", map[string]interface{}{"quantity": 4}, buyer)
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusNotFound, 40400)

	w = testutil.DoRequest(r, "POST", "/api/v1/basket/submit", map[string]interface{}{"submit_now": true}, buyer)
	resp = testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusCreated, 0)
	quote := dataOf(t, resp)["quote"].(map[string]interface{})
	if quote["status"] != "pending" {
		t.Fatalf("expected pending quote, got %v", quote["status"])
	}

	w = testutil.DoRequest(r, "GET", "/api/v1/basket", nil, buyer)
	if n := len(dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})); n != 0 {
		t.Fatalf("basket should be empty after submit, got %d", n)
	}
}

func TestNextStates(t *testing.T) {
	r, _ := setupQuoteAPI(t)
	buyer := testutil.BuyerToken("buyer-001")

	w := testutil.DoRequest(r, "GET", "/api/v1/quote-statuses/reviewing/next", nil, buyer)
	resp := testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	next := dataOf(t, resp)["allowed_next_states"].([]interface{})
	if fmt.Sprint(next) != "[approved rejected]" {
		t.Fatalf("unexpected next states %v", next)
	}

	w = testutil.DoRequest(r, "GET", "/api/v1/quote-statuses/bogus/next", nil, buyer)
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusBadRequest, 40000)
}

func TestExportDownload(t *testing.T) {
	r, db := setupQuoteAPI(t)
	testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusPending)

	w := testutil.DoRequest(r, "GET", "/api/v1/admin/quotes/export", nil, testutil.AdminToken())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".xlsx") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	if w.Body.Len() == 0 {
		t.Fatal("empty workbook")
	}
}

func TestMessagesOverHTTP(t *testing.T) {
	r, db := setupQuoteAPI(t)
	testutil.SeedVerifiedBusiness(t, db, "buyer-001")
	q := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusReviewing)
	path := "/api/v1/quotes/" + q.ID + "/messages"

	w := testutil.DoRequest(r, "POST", path, map[string]interface{}{"body": "Need delivery to Pune"}, testutil.BuyerToken("buyer-001"))
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusCreated, 0)

	w = testutil.DoRequest(r, "POST", path, map[string]interface{}{"body": "Noted"}, testutil.AdminToken())
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusCreated, 0)

	w = testutil.DoRequest(r, "GET", path, nil, testutil.BuyerToken("buyer-001"))
	resp := testutil.ParseResponse(w)
	if n := len(dataOf(t, resp)["items"].([]interface{})); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
}

func TestOrderRepairOverHTTP(t *testing.T) {
	r, db := setupQuoteAPI(t)
	orderID := "ord00000000000000000000000000001"
	q := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusConverted, func(q *entity.Quote) {
		q.OrderID = &orderID
	})
	admin := testutil.AdminToken()
	path := "/api/v1/admin/quotes/" + q.ID + "/order"

	w := testutil.DoRequest(r, "GET", path, nil, admin)
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusNotFound, 40400)

	w = testutil.DoRequest(r, "POST", path, nil, testutil.BuyerToken("buyer-001"))
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusForbidden, 40312)

	w = testutil.DoRequest(r, "POST", path, nil, admin)
	resp := testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	if dataOf(t, resp)["id"] != orderID {
		t.Fatalf("order should use the allocated id, got %v", resp["data"])
	}

	w = testutil.DoRequest(r, "GET", path, nil, admin)
	resp = testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	if dataOf(t, resp)["quote_id"] != q.ID {
		t.Fatalf("unexpected order %v", resp["data"])
	}

	open := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusApproved)
	w = testutil.DoRequest(r, "POST", "/api/v1/admin/quotes/"+open.ID+"/order", nil, admin)
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusBadRequest, 40000)
}

func TestAdminExpireWaitsForValidityEnd(t *testing.T) {
	r, db := setupQuoteAPI(t)
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-time.Hour)
	current := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusApproved, func(q *entity.Quote) { q.ExpiresAt = &future })
	due := testutil.SeedQuote(t, db, "buyer-001", lifecycle.StatusApproved, func(q *entity.Quote) { q.ExpiresAt = &past })

	w := testutil.DoRequest(r, "POST", "/api/v1/admin/quotes/"+current.ID+"/expire", nil, testutil.AdminToken())
	expectCode(t, w.Code, testutil.ParseResponse(w), http.StatusBadRequest, 40000)

	w = testutil.DoRequest(r, "POST", "/api/v1/admin/quotes/"+due.ID+"/expire", nil, testutil.AdminToken())
	resp := testutil.ParseResponse(w)
	expectCode(t, w.Code, resp, http.StatusOK, 0)
	if dataOf(t, resp)["quote"].(map[string]interface{})["status"] != "expired" {
		t.Fatalf("expected expired, got %v", resp["data"])
	}
}
