package service

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/permission"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/testutil"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	repos *repository.Repositories
	svc   *Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewServices(repos, nil, Options{ValidityDays: 30, Currency: "INR"}, zaptest.NewLogger(t))
	return &testEnv{db: db, repos: repos, svc: svc}
}

func verifiedBuyer(id string) Actor {
	return Actor{UserID: id, Name: "Buyer " + id, UserType: permission.UserTypeVerified, IsVerified: true}
}

func unverifiedBusiness(id string) Actor {
	return Actor{UserID: id, Name: "Buyer " + id, UserType: permission.UserTypeBusiness}
}

func adminActor() Actor {
	return Actor{UserID: "admin-1", Name: "Asha Rao", Role: "admin", IsAdmin: true}
}

func auditTrail(t *testing.T, env *testEnv, quoteID string) []entity.QuoteAuditLog {
	t.Helper()
	entries, err := env.repos.AuditLog.FindByQuote(context.Background(), quoteID)
	if err != nil {
		t.Fatalf("load audit log: %v", err)
	}
	return entries
}

func reload(t *testing.T, env *testEnv, id string) *entity.Quote {
	t.Helper()
	q, err := env.repos.Quote.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload quote: %v", err)
	}
	return q
}

func TestCreateAndSubmitQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := verifiedBuyer("buyer-1")

	price := 2500.0
	q, err := env.svc.Quote.CreateQuote(ctx, buyer, &CreateQuoteRequest{
		CompanyName: "Skyline Lifts",
		Items: []QuoteItemInput{
			{ProductID: "prod-rope", ProductName: "Steel rope", Quantity: 4, UnitPrice: &price},
			{ProductID: "prod-button", ProductName: "Call button", Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if q.Status != lifecycle.StatusDraft {
		t.Fatalf("expected draft, got %s", q.Status)
	}
	if !strings.HasPrefix(q.QuoteNumber, "QT-"+time.Now().Format("2006")+"-") {
		t.Fatalf("unexpected quote number %s", q.QuoteNumber)
	}
	if q.EstimatedTotal != 10000 {
		t.Fatalf("expected estimate 10000, got %v", q.EstimatedTotal)
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 1 {
		t.Fatalf("expected one created entry, got %d", n)
	}

	res, err := env.svc.Quote.SubmitQuote(ctx, buyer, q.ID)
	if err != nil {
		t.Fatalf("SubmitQuote: %v", err)
	}
	if !res.Success || res.Quote.Status != lifecycle.StatusPending {
		t.Fatalf("expected pending, got %+v", res)
	}
	if res.Quote.SubmittedAt == nil {
		t.Fatal("submitted_at should be set")
	}

	trail := auditTrail(t, env, q.ID)
	if len(trail) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(trail))
	}
	last := trail[1]
	if last.ActionType != entity.AuditStatusChanged || last.OldStatus != "draft" || last.NewStatus != "pending" {
		t.Fatalf("unexpected audit entry %+v", last)
	}
	if last.AdminClerkID != nil || last.AdminName != nil || last.AdminRole != nil {
		t.Fatal("buyer action must not carry admin identity")
	}
	if last.ActorID != "buyer-1" {
		t.Fatalf("expected actor buyer-1, got %s", last.ActorID)
	}
}

func TestCreateQuoteValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Quote.CreateQuote(context.Background(), verifiedBuyer("b1"), &CreateQuoteRequest{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = env.svc.Quote.CreateQuote(context.Background(), adminActor(), &CreateQuoteRequest{
		Items: []QuoteItemInput{{ProductID: "p", Quantity: 1}},
	})
	var ae *AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthorizationError for admin, got %v", err)
	}
}

func TestCreateQuoteRetriesTakenNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	taken := testutil.SeedQuote(t, env.db, "buyer-2", lifecycle.StatusDraft)

	// the first number handed out was already claimed by a concurrent insert
	codes := []string{taken.QuoteNumber, "QT-2026-0042"}
	calls := 0
	env.svc.Quote.nextCode = func(context.Context) (string, error) {
		code := codes[calls]
		calls++
		return code, nil
	}

	q, err := env.svc.Quote.CreateQuote(ctx, verifiedBuyer("buyer-1"), &CreateQuoteRequest{
		Items: []QuoteItemInput{{ProductID: "prod-door", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if q.QuoteNumber != "QT-2026-0042" || calls != 2 {
		t.Fatalf("expected a second number, got %s after %d calls", q.QuoteNumber, calls)
	}
	stored := reload(t, env, q.ID)
	if len(stored.Items) != 1 || len(auditTrail(t, env, q.ID)) != 1 {
		t.Fatalf("quote should be stored once with its created entry, got %+v", stored)
	}

	env.svc.Quote.nextCode = func(context.Context) (string, error) { return taken.QuoteNumber, nil }
	_, err = env.svc.Quote.CreateQuote(ctx, verifiedBuyer("buyer-1"), &CreateQuoteRequest{
		Items: []QuoteItemInput{{ProductID: "prod-door", Quantity: 1}},
	})
	var pe *PersistenceError
	if !errors.As(err, &pe) || !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate PersistenceError after retries, got %v", err)
	}
}

func TestStartReviewKeepsPricingHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)

	res, err := env.svc.Quote.StartReview(ctx, adminActor(), q.ID)
	if err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	if res.Quote.Status != lifecycle.StatusReviewing || res.Quote.ReviewingStartedAt == nil {
		t.Fatalf("expected reviewing with timestamp, got %+v", res.Quote)
	}

	perms, err := env.svc.Quote.GetQuotePermissions(ctx, verifiedBuyer("buyer-1"), q.ID)
	if err != nil {
		t.Fatalf("GetQuotePermissions: %v", err)
	}
	if perms.CanViewPricing {
		t.Fatal("pricing must stay hidden while reviewing")
	}

	trail := auditTrail(t, env, q.ID)
	if len(trail) != 1 || trail[0].AdminClerkID == nil || *trail[0].AdminClerkID != "admin-1" || *trail[0].AdminRole != "admin" {
		t.Fatalf("expected one admin audit entry, got %+v", trail)
	}
}

func TestPricingReleasedOnlyWhenVisible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := adminActor()
	buyer := verifiedBuyer("buyer-1")
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)

	res, err := env.svc.Quote.SetPricing(ctx, admin, q.ID, &SetPricingRequest{Total: 12000})
	if err != nil {
		t.Fatalf("SetPricing: %v", err)
	}
	if res.Quote.Status != lifecycle.StatusReviewing {
		t.Fatal("pricing must not change status")
	}
	trail := auditTrail(t, env, q.ID)
	pricing := trail[len(trail)-1]
	if pricing.ActionType != entity.AuditPricingUpdated || !pricing.PricingChanged ||
		*pricing.OldTotal != 1000 || *pricing.NewTotal != 12000 {
		t.Fatalf("unexpected pricing entry %+v", pricing)
	}

	res, err = env.svc.Quote.ApproveQuote(ctx, admin, q.ID, "")
	if err != nil {
		t.Fatalf("ApproveQuote: %v", err)
	}
	if res.Quote.Status != lifecycle.StatusApproved || res.Quote.ExpiresAt == nil {
		t.Fatalf("expected approved with validity, got %+v", res.Quote)
	}
	if res.Quote.ApprovedBy == nil || *res.Quote.ApprovedBy != "admin-1" {
		t.Fatal("approved_by should be recorded")
	}

	view, err := env.svc.Quote.GetQuote(ctx, buyer, q.ID)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if view.Permissions.CanViewPricing || view.Quote.FinalTotal != nil {
		t.Fatal("pricing must stay hidden until released")
	}
	if !view.Locked {
		t.Fatal("approved quote should be locked")
	}

	if _, err := env.svc.Quote.SetPricingVisibility(ctx, admin, q.ID, true); err != nil {
		t.Fatalf("SetPricingVisibility: %v", err)
	}
	view, err = env.svc.Quote.GetQuote(ctx, buyer, q.ID)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if !view.Permissions.CanViewPricing || view.Quote.FinalTotal == nil || *view.Quote.FinalTotal != 12000 {
		t.Fatalf("pricing should be visible now, got %+v", view)
	}

	_, err = env.svc.Quote.SetPricingVisibility(ctx, admin, q.ID, true)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("repeating the same visibility should be refused, got %v", err)
	}
}

func TestConvertThenConvertAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := verifiedBuyer("buyer-1")
	expires := time.Now().Add(24 * time.Hour)
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusApproved, func(q *entity.Quote) {
		q.PricingVisible = true
		total := 12000.0
		q.FinalTotal = &total
		q.ExpiresAt = &expires
	})

	res, err := env.svc.Quote.ConvertToOrder(ctx, buyer, q.ID)
	if err != nil {
		t.Fatalf("ConvertToOrder: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning %q", res.Warning)
	}
	if res.Quote.Status != lifecycle.StatusConverted || res.Quote.OrderID == nil {
		t.Fatalf("expected converted with order id, got %+v", res.Quote)
	}

	trail := auditTrail(t, env, q.ID)
	if len(trail) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(trail))
	}
	if trail[0].ActionType != entity.AuditConverted || trail[0].Metadata["order_id"] != *res.Quote.OrderID {
		t.Fatalf("audit entry should link the order, got %+v", trail[0])
	}

	order, err := env.svc.Order.GetOrder(ctx, *res.Quote.OrderID)
	if err != nil {
		t.Fatalf("order not created: %v", err)
	}
	if order.QuoteID != q.ID || order.Total != 12000 || len(order.Items) != 1 {
		t.Fatalf("unexpected order %+v", order)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}

	_, err = env.svc.Quote.ConvertToOrder(ctx, buyer, q.ID)
	var te *lifecycle.TransitionError
	if !errors.As(err, &te) || te.Reason != lifecycle.ReasonTerminal {
		t.Fatalf("expected terminal state error, got %v", err)
	}
	if !strings.Contains(err.Error(), "terminal state") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 1 {
		t.Fatalf("refused attempt must not be audited, got %d rows", n)
	}
}

func TestAdminCannotRejectConvertedQuote(t *testing.T) {
	env := newTestEnv(t)
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusConverted)

	_, err := env.svc.Quote.RejectQuote(context.Background(), adminActor(), q.ID, "price changed")
	if !IsTransitionError(err) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 0 {
		t.Fatalf("audit log should be unchanged, got %d rows", n)
	}
}

func TestUnverifiedBusinessCannotConvert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := unverifiedBusiness("buyer-2")
	q := testutil.SeedQuote(t, env.db, "buyer-2", lifecycle.StatusApproved, func(q *entity.Quote) {
		q.PricingVisible = true
	})

	_, err := env.svc.Quote.ConvertToOrder(ctx, buyer, q.ID)
	var ae *AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	perms, err := env.svc.Quote.GetQuotePermissions(ctx, buyer, q.ID)
	if err != nil {
		t.Fatalf("GetQuotePermissions: %v", err)
	}
	if perms.CanConvertToOrder {
		t.Fatal("CanConvertToOrder should be false")
	}
	if reload(t, env, q.ID).Status != lifecycle.StatusApproved {
		t.Fatal("quote must stay approved")
	}
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)

	_, err := env.svc.Quote.RejectQuote(ctx, adminActor(), q.ID, "   ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	res, err := env.svc.Quote.RejectQuote(ctx, adminActor(), q.ID, "Out of stock for this model")
	if err != nil {
		t.Fatalf("RejectQuote: %v", err)
	}
	if res.Quote.RejectionReason != "Out of stock for this model" || res.Quote.RejectedAt == nil {
		t.Fatalf("rejection not recorded: %+v", res.Quote)
	}
	trail := auditTrail(t, env, q.ID)
	if len(trail) != 1 || trail[0].Notes != "Out of stock for this model" {
		t.Fatalf("unexpected trail %+v", trail)
	}
}

func TestBuyerCannotUseAdminActions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := verifiedBuyer("buyer-1")
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)

	checks := map[string]func() error{
		"start review": func() error { _, err := env.svc.Quote.StartReview(ctx, buyer, q.ID); return err },
		"reject":       func() error { _, err := env.svc.Quote.RejectQuote(ctx, buyer, q.ID, "no"); return err },
		"pricing": func() error {
			_, err := env.svc.Quote.SetPricing(ctx, buyer, q.ID, &SetPricingRequest{Total: 5})
			return err
		},
		"expire": func() error { _, err := env.svc.Quote.MarkExpired(ctx, buyer, q.ID); return err },
	}
	for name, fn := range checks {
		var ae *AuthorizationError
		if err := fn(); !errors.As(err, &ae) {
			t.Fatalf("%s: expected AuthorizationError, got %v", name, err)
		}
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 0 {
		t.Fatalf("no audit rows expected, got %d", n)
	}
}

func TestBuyerCannotSeeOthersQuote(t *testing.T) {
	env := newTestEnv(t)
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusDraft)

	_, err := env.svc.Quote.GetQuote(context.Background(), verifiedBuyer("buyer-2"), q.ID)
	if !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
	_, err = env.svc.Quote.SubmitQuote(context.Background(), verifiedBuyer("buyer-2"), q.ID)
	if !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
}

func TestSetPricingRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pending := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)

	_, err := env.svc.Quote.SetPricing(ctx, adminActor(), pending.ID, &SetPricingRequest{Total: 0})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for zero total, got %v", err)
	}

	_, err = env.svc.Quote.SetPricing(ctx, adminActor(), pending.ID, &SetPricingRequest{Total: 100})
	var ae *AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("pricing a pending quote should be refused, got %v", err)
	}

	reviewing := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)
	itemID := reviewing.Items[0].ID
	res, err := env.svc.Quote.SetPricing(ctx, adminActor(), reviewing.ID, &SetPricingRequest{
		Total:      900,
		ItemPrices: []ItemPrice{{ItemID: itemID, QuotedPrice: 450}},
	})
	if err != nil {
		t.Fatalf("SetPricing: %v", err)
	}
	if p := res.Quote.Items[0].QuotedPrice; p == nil || *p != 450 {
		t.Fatalf("quoted price not stored: %+v", res.Quote.Items[0])
	}

	_, err = env.svc.Quote.SetPricing(ctx, adminActor(), reviewing.ID, &SetPricingRequest{
		Total:      900,
		ItemPrices: []ItemPrice{{ItemID: "missing", QuotedPrice: 1}},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("unknown item should be refused, got %v", err)
	}
}

func TestUpdateItemsRespectsLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	price := 100.0
	items := []QuoteItemInput{{ProductID: "prod-guide", Quantity: 3, UnitPrice: &price}}

	approved := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusApproved)
	_, err := env.svc.Quote.UpdateItems(ctx, adminActor(), approved.ID, items, "")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("locked quote items must not change, got %v", err)
	}

	reviewing := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)
	res, err := env.svc.Quote.UpdateItems(ctx, adminActor(), reviewing.ID, items, "swapped guide rails")
	if err != nil {
		t.Fatalf("UpdateItems: %v", err)
	}
	if len(res.Quote.Items) != 1 || res.Quote.Items[0].ProductID != "prod-guide" || res.Quote.EstimatedTotal != 300 {
		t.Fatalf("items not replaced: %+v", res.Quote)
	}
	trail := auditTrail(t, env, reviewing.ID)
	if trail[len(trail)-1].ActionType != entity.AuditItemsUpdated {
		t.Fatalf("expected items_updated entry, got %+v", trail)
	}
}

func TestAuditLogIsAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := adminActor()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)

	steps := []func() error{
		func() error { _, err := env.svc.Quote.StartReview(ctx, admin, q.ID); return err },
		func() error {
			_, err := env.svc.Quote.SetPricing(ctx, admin, q.ID, &SetPricingRequest{Total: 5000})
			return err
		},
		func() error { _, err := env.svc.Quote.ApproveQuote(ctx, admin, q.ID, "ok"); return err },
		func() error { _, err := env.svc.Quote.SetPricingVisibility(ctx, admin, q.ID, true); return err },
	}

	before := auditTrail(t, env, q.ID)
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		after := auditTrail(t, env, q.ID)
		if len(after) != len(before)+1 {
			t.Fatalf("step %d: expected exactly one new row, got %d -> %d", i, len(before), len(after))
		}
		if !reflect.DeepEqual(fingerprint(after[:len(before)]), fingerprint(before)) {
			t.Fatalf("step %d: earlier rows changed", i)
		}
		if after[len(after)-1].Seq != len(after) {
			t.Fatalf("step %d: unexpected seq %d", i, after[len(after)-1].Seq)
		}
		before = after
	}

	err := env.db.Model(&before[0]).Update("notes", "rewritten").Error
	if !errors.Is(err, entity.ErrAuditImmutable) {
		t.Fatalf("expected audit rows to be immutable, got %v", err)
	}
	err = env.db.Delete(&before[0]).Error
	if !errors.Is(err, entity.ErrAuditImmutable) {
		t.Fatalf("expected audit rows to be undeletable, got %v", err)
	}
}

// fingerprint keeps the fields an audit reader relies on.
func fingerprint(entries []entity.QuoteAuditLog) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		total := "-"
		if e.NewTotal != nil {
			total = strconv.FormatFloat(*e.NewTotal, 'f', 2, 64)
		}
		out = append(out, strings.Join([]string{
			e.ID, strconv.Itoa(e.Seq), e.ActionType, e.OldStatus, e.NewStatus, e.ActorID, e.Notes, total,
		}, "|"))
	}
	return out
}

func TestConcurrentApproveAndReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := adminActor()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.svc.Quote.ApproveQuote(ctx, admin, q.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.svc.Quote.RejectQuote(ctx, admin, q.ID, "duplicate request")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var ce *ConflictError
		if !errors.As(err, &ce) && !IsTransitionError(err) {
			t.Fatalf("loser should see a conflict or transition error, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one of approve/reject must win, got %d", succeeded)
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 1 {
		t.Fatalf("expected one audit row, got %d", n)
	}
}

func TestStaleVersionIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)

	// another writer bumped the version after our read
	env.db.Model(&entity.Quote{}).Where("id = ?", q.ID).Update("version", gorm.Expr("version + 1"))

	err := env.repos.Quote.Apply(ctx, &repository.QuoteChange{
		QuoteID:     q.ID,
		FromStatus:  lifecycle.StatusPending,
		FromVersion: q.Version,
		Updates:     map[string]interface{}{"status": string(lifecycle.StatusReviewing)},
		Audit:       &entity.QuoteAuditLog{ActionType: entity.AuditStatusChanged, ActorID: "admin-1"},
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if reload(t, env, q.ID).Status != lifecycle.StatusPending {
		t.Fatal("stale write must not change the quote")
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 0 {
		t.Fatalf("stale write must not be audited, got %d rows", n)
	}
}

type failingNotifier struct {
	calls int
}

func (f *failingNotifier) Notify(context.Context, QuoteEvent) error {
	f.calls++
	return errors.New("smtp relay unreachable")
}

type failingOrders struct{}

func (failingOrders) CreateOrder(context.Context, *entity.Quote, string) (*entity.Order, error) {
	return nil, errors.New("order service down")
}

func TestSideEffectFailuresBecomeWarnings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	notifier := &failingNotifier{}
	env.svc.Quote.SetNotifier(notifier)

	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)
	res, err := env.svc.Quote.ApproveQuote(ctx, adminActor(), q.ID, "")
	if err != nil {
		t.Fatalf("ApproveQuote: %v", err)
	}
	if !res.Success || res.Warning == "" {
		t.Fatalf("expected success with warning, got %+v", res)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier should be called once, got %d", notifier.calls)
	}
	if reload(t, env, q.ID).Status != lifecycle.StatusApproved {
		t.Fatal("approval must stand")
	}

	env.svc.Quote.SetNotifier(nil)
	env.svc.Quote.SetOrderCreator(failingOrders{})
	res, err = env.svc.Quote.ConvertToOrder(ctx, verifiedBuyer("buyer-1"), q.ID)
	if err != nil {
		t.Fatalf("ConvertToOrder: %v", err)
	}
	if res.Warning == "" || res.Quote.Status != lifecycle.StatusConverted {
		t.Fatalf("expected converted with warning, got %+v", res)
	}
}

func TestConvertAfterValidityEnded(t *testing.T) {
	env := newTestEnv(t)
	past := time.Now().Add(-time.Hour)
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusApproved, func(q *entity.Quote) {
		q.ExpiresAt = &past
	})

	_, err := env.svc.Quote.ConvertToOrder(context.Background(), verifiedBuyer("buyer-1"), q.ID)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBuyerAuditLogHidesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)
	if _, err := env.svc.Quote.SetPricing(ctx, adminActor(), q.ID, &SetPricingRequest{Total: 777}); err != nil {
		t.Fatalf("SetPricing: %v", err)
	}

	entries, err := env.svc.Quote.GetQuoteAuditLog(ctx, verifiedBuyer("buyer-1"), q.ID)
	if err != nil {
		t.Fatalf("GetQuoteAuditLog: %v", err)
	}
	if len(entries) != 1 || entries[0].NewTotal != nil {
		t.Fatalf("buyer should not see totals: %+v", entries)
	}

	entries, err = env.svc.Quote.GetQuoteAuditLog(ctx, adminActor(), q.ID)
	if err != nil {
		t.Fatalf("GetQuoteAuditLog: %v", err)
	}
	if entries[0].NewTotal == nil || *entries[0].NewTotal != 777 {
		t.Fatalf("admin should see totals: %+v", entries)
	}
}

func TestListQuotesScopesBuyers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusDraft)
	testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusPending)
	testutil.SeedQuote(t, env.db, "buyer-2", lifecycle.StatusPending)

	items, total, err := env.svc.Quote.ListQuotes(ctx, verifiedBuyer("buyer-1"), 1, 20, map[string]string{"clerk_user_id": "buyer-2"})
	if err != nil {
		t.Fatalf("ListQuotes: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("buyer should only see own quotes, got %d", total)
	}

	_, total, err = env.svc.Quote.ListQuotes(ctx, adminActor(), 1, 20, map[string]string{"status": "pending"})
	if err != nil {
		t.Fatalf("ListQuotes: %v", err)
	}
	if total != 2 {
		t.Fatalf("admin should see both pending quotes, got %d", total)
	}

	_, _, err = env.svc.Quote.ListQuotes(ctx, adminActor(), 1, 20, map[string]string{"status": "cancelled"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("unknown status filter should be refused, got %v", err)
	}
}

func TestQuoteMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusReviewing)
	other := testutil.SeedQuote(t, env.db, "buyer-2", lifecycle.StatusReviewing)

	if _, err := env.svc.Quote.PostMessage(ctx, verifiedBuyer("buyer-1"), q.ID, "Can you deliver by March?"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if _, err := env.svc.Quote.PostMessage(ctx, adminActor(), q.ID, "Yes, from the Pune warehouse."); err != nil {
		t.Fatalf("admin reply: %v", err)
	}
	msgs, err := env.svc.Quote.ListMessages(ctx, verifiedBuyer("buyer-1"), q.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if n := testutil.AuditCount(t, env.db, q.ID); n != 0 {
		t.Fatalf("messages are not audit entries, got %d", n)
	}

	_, err = env.svc.Quote.PostMessage(ctx, unverifiedBusiness("buyer-2"), other.ID, "hello")
	var ae *AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("unverified buyer should not message admin, got %v", err)
	}

	converted := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusConverted)
	_, err = env.svc.Quote.PostMessage(ctx, adminActor(), converted.ID, "late reply")
	if !errors.As(err, &ae) {
		t.Fatalf("converted quote is closed for admin messages, got %v", err)
	}
}

func TestAllowedNextStates(t *testing.T) {
	env := newTestEnv(t)
	next, err := env.svc.Quote.AllowedNextStates("pending")
	if err != nil || len(next) != 2 {
		t.Fatalf("unexpected next states %v, %v", next, err)
	}
	if _, err := env.svc.Quote.AllowedNextStates("nope"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestEnsureOrderRepairsFailedConversion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusApproved)

	env.svc.Quote.SetOrderCreator(failingOrders{})
	res, err := env.svc.Quote.ConvertToOrder(ctx, verifiedBuyer("buyer-1"), q.ID)
	if err != nil {
		t.Fatalf("ConvertToOrder: %v", err)
	}
	if res.Warning == "" || res.Quote.OrderID == nil {
		t.Fatalf("expected converted quote with warning, got %+v", res)
	}
	orderID := *res.Quote.OrderID
	if _, err := env.svc.Order.GetOrder(ctx, orderID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("order should be missing, got %v", err)
	}

	env.svc.Quote.SetOrderCreator(env.svc.Order)

	_, err = env.svc.Quote.EnsureOrder(ctx, verifiedBuyer("buyer-1"), q.ID)
	var ae *AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("buyers must not repair orders, got %v", err)
	}

	order, err := env.svc.Quote.EnsureOrder(ctx, adminActor(), q.ID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	if order.ID != orderID || order.QuoteID != q.ID {
		t.Fatalf("order should use the allocated id, got %+v", order)
	}
	got, err := env.svc.Order.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 order line, got %+v", got.Items)
	}

	again, err := env.svc.Quote.EnsureOrder(ctx, adminActor(), q.ID)
	if err != nil {
		t.Fatalf("EnsureOrder again: %v", err)
	}
	if again.OrderNumber != order.OrderNumber {
		t.Fatalf("repair must be idempotent, got %s and %s", order.OrderNumber, again.OrderNumber)
	}
	if n := len(auditTrail(t, env, q.ID)); n != 1 {
		t.Fatalf("repair must not add audit entries, got %d", n)
	}
}

func TestEnsureOrderNeedsConvertedQuote(t *testing.T) {
	env := newTestEnv(t)
	q := testutil.SeedQuote(t, env.db, "buyer-1", lifecycle.StatusApproved)

	_, err := env.svc.Quote.EnsureOrder(context.Background(), adminActor(), q.ID)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
