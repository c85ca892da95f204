package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omi1811/concretethings-sub000/internal/middleware"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

const (
	TestSchema = "test_qsm"
	JWTSecret  = "qsm-test-jwt-secret"
)

// projectRoot returns the module root by looking for go.mod.
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB opens a connection with a unique schema per test so parallel
// tests never see each other's rows. The schema is dropped on cleanup.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "qsm")
	password := getEnv("DB_PASSWORD", "qsm")
	dbname := getEnv("DB_NAME", "qsm_test")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in the DSN so all pooled connections use the test schema.
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&entity.User{},
		&entity.Project{},
		&entity.ProjectSettings{},
		&entity.ProjectMembership{},
		&entity.Vendor{},
		&entity.MixDesign{},
		&entity.VehicleEntry{},
		&entity.PourActivity{},
		&entity.Batch{},
		&entity.CubeTest{},
		&entity.TestReminder{},
		&entity.NonConformance{},
		&entity.NCTransfer{},
		&entity.NotificationLog{},
		&entity.AuditEntry{},
		&entity.SequenceCounter{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a quiet gin engine for handler tests.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group guarded by the JWT middleware.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token with the test secret.
func GenerateTestToken(userID, name, email string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
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

// ParseResponse unmarshals the JSON body into a map.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedUser inserts a user row.
func SeedUser(t *testing.T, db *gorm.DB, id, name, email string) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:     id,
		Name:   name,
		Email:  email,
		Status: "active",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return user
}

// SeedProject inserts an active project with default settings.
func SeedProject(t *testing.T, db *gorm.DB, id, code, name string) *entity.Project {
	t.Helper()
	project := &entity.Project{
		ID:       id,
		Code:     code,
		Name:     name,
		Timezone: "Asia/Kolkata",
		Status:   entity.ProjectStatusActive,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	settings := entity.DefaultSettings(id)
	settings.ID = "settings-" + id
	if err := db.Create(settings).Error; err != nil {
		t.Fatalf("Failed to seed project settings: %v", err)
	}
	return project
}

// SeedMembership binds a user to a project with a role.
func SeedMembership(t *testing.T, db *gorm.DB, projectID, userID, role string) {
	t.Helper()
	m := &entity.ProjectMembership{
		ID:        fmt.Sprintf("m-%s-%s", projectID, userID),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		IsActive:  true,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("Failed to seed membership: %v", err)
	}
}

// SeedVendor inserts a contractor.
func SeedVendor(t *testing.T, db *gorm.DB, id, projectID, name string) *entity.Vendor {
	t.Helper()
	vendor := &entity.Vendor{
		ID:           id,
		ProjectID:    projectID,
		Name:         name,
		ContactName:  "Site Office",
		ContactPhone: "9999999999",
		Approved:     true,
	}
	if err := db.Create(vendor).Error; err != nil {
		t.Fatalf("Failed to seed vendor: %v", err)
	}
	return vendor
}

// SeedVehicle inserts an on-site RMC vehicle entry.
func SeedVehicle(t *testing.T, db *gorm.DB, id, projectID, number string, entryTime time.Time) *entity.VehicleEntry {
	t.Helper()
	v := &entity.VehicleEntry{
		ID:               id,
		ProjectID:        projectID,
		VehicleNumber:    number,
		MaterialType:     entity.MaterialRMC,
		EntryTime:        entryTime,
		Status:           entity.VehicleStatusOnSite,
		AllowedTimeHours: 3.0,
	}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("Failed to seed vehicle: %v", err)
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
