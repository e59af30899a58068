package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/middleware"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "quote-service-test-secret"

// SetupTestDB opens an isolated in-memory sqlite database with every quote table migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// shared-cache sqlite locks tables across connections
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(entity.Models()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group behind JWT auth.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token for userID with the given roles.
func GenerateTestToken(userID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": userID + "@test.local",
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// AdminToken returns a token for a sales admin.
func AdminToken() string {
	return GenerateTestToken("admin-001", "Sales Admin", []string{middleware.RoleAdmin})
}

// BuyerToken returns a token for a buyer without back-office roles.
func BuyerToken(userID string) string {
	return GenerateTestToken(userID, "Buyer "+userID, nil)
}

// DoRequest executes an HTTP request against the test router.
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the JSON envelope.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedProfile stores a buyer profile.
func SeedProfile(t *testing.T, db *gorm.DB, userID, accountType, verification string) *entity.BuyerProfile {
	t.Helper()
	p := &entity.BuyerProfile{
		ClerkUserID:        userID,
		AccountType:        accountType,
		CompanyName:        "Company " + userID,
		VerificationStatus: verification,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}
	return p
}

// SeedVerifiedBusiness stores a verified business profile.
func SeedVerifiedBusiness(t *testing.T, db *gorm.DB, userID string) *entity.BuyerProfile {
	return SeedProfile(t, db, userID, entity.AccountBusiness, entity.VerificationVerified)
}

// SeedQuote inserts a quote directly in the given status, bypassing the service.
func SeedQuote(t *testing.T, db *gorm.DB, owner string, status lifecycle.Status, mutate ...func(q *entity.Quote)) *entity.Quote {
	t.Helper()
	id := uuid.New().String()[:32]
	q := &entity.Quote{
		ID:             id,
		QuoteNumber:    "QT-SEED-" + id[:8],
		Status:         status,
		ClerkUserID:    owner,
		UserType:       "verified",
		EstimatedTotal: 1000,
		Currency:       "INR",
		Version:        1,
		Items: []entity.QuoteItem{{
			ID:          uuid.New().String()[:32],
			QuoteID:     id,
			ProductID:   "prod-door-operator",
			ProductName: "Door operator",
			SKU:         "DO-100",
			Quantity:    2,
			SortOrder:   1,
		}},
	}
	for _, fn := range mutate {
		fn(q)
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("Failed to seed quote: %v", err)
	}
	return q
}

// AuditCount returns the number of audit rows of a quote.
func AuditCount(t *testing.T, db *gorm.DB, quoteID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&entity.QuoteAuditLog{}).Where("quote_id = ?", quoteID).Count(&n).Error; err != nil {
		t.Fatalf("Failed to count audit rows: %v", err)
	}
	return n
}
