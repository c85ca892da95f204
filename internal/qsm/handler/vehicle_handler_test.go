package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
	"github.com/omi1811/concretethings-sub000/internal/qsm/sse"
	"github.com/omi1811/concretethings-sub000/internal/qsm/testutil"
	"gorm.io/gorm"
)

// setupAPI boots the full route tree against a schema-isolated database. The
// scheduler-backed job triggers and blob uploads stay nil; no test here hits
// them.
func setupAPI(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := service.NewServices(db, repos, nil, zap.NewNop())
	h := NewHandlers(svc, repos, nil, sse.NewHub(), nil)

	r := testutil.SetupRouter()
	RegisterRoutes(r, h, testutil.JWTSecret, zap.NewNop())
	return db, r
}

func TestVehicleEndpoints(t *testing.T) {
	db, r := setupAPI(t)

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "w1", "Watchman", "w1@test.com")
	testutil.SeedMembership(t, db, "proj1", "w1", entity.RoleWatchman)
	token := testutil.GenerateTestToken("w1", "Watchman", "w1@test.com")

	// No token: the JWT middleware rejects before any handler runs.
	w := testutil.DoRequest(r, "POST", "/api/material-vehicles", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	w = testutil.DoRequest(r, "POST", "/api/material-vehicles", map[string]interface{}{
		"project_id":     "proj1",
		"vehicle_number": "mh12ab1234",
		"material_type":  "RMC",
		"vendor_name":    "UltraMix RMC",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := testutil.ParseResponse(w)
	if created["vehicle_number"] != "MH12AB1234" {
		t.Errorf("vehicle_number = %v, want MH12AB1234", created["vehicle_number"])
	}
	vehicleID, _ := created["id"].(string)
	if vehicleID == "" {
		t.Fatal("create response has no id")
	}

	// Listing without project_id is a 400 with the error envelope.
	w = testutil.DoRequest(r, "GET", "/api/material-vehicles", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing project_id status = %d, want 400", w.Code)
	}
	envelope := testutil.ParseResponse(w)
	if envelope["error"] != "invalid_argument" {
		t.Errorf("envelope error = %v, want invalid_argument", envelope["error"])
	}

	w = testutil.DoRequest(r, "GET", "/api/material-vehicles?project_id=proj1", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	listed := testutil.ParseResponse(w)
	items, _ := listed["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}

	w = testutil.DoRequest(r, "POST",
		fmt.Sprintf("/api/material-vehicles/%s/exit?project_id=proj1", vehicleID), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("exit status = %d, body = %s", w.Code, w.Body.String())
	}
	exited := testutil.ParseResponse(w)
	if exited["status"] != entity.VehicleStatusExited {
		t.Errorf("status = %v, want exited", exited["status"])
	}
}

func TestNCEndpointsRoleMapping(t *testing.T) {
	db, r := setupAPI(t)

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "w1", "Watchman", "w1@test.com")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "w1", entity.RoleWatchman)
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")

	watchman := testutil.GenerateTestToken("w1", "Watchman", "w1@test.com")
	engineer := testutil.GenerateTestToken("qe1", "QE One", "qe1@test.com")

	body := map[string]interface{}{
		"project_id":    "proj1",
		"title":         "Honeycombing in column C4",
		"severity":      "HIGH",
		"contractor_id": "vend1",
	}

	// Watchmen cannot raise NCs: permission_denied maps to 403.
	w := testutil.DoRequest(r, "POST", "/api/concrete/nc", body, watchman)
	if w.Code != http.StatusForbidden {
		t.Fatalf("watchman raise status = %d, want 403", w.Code)
	}
	envelope := testutil.ParseResponse(w)
	if envelope["error"] != "permission_denied" {
		t.Errorf("envelope error = %v, want permission_denied", envelope["error"])
	}

	w = testutil.DoRequest(r, "POST", "/api/concrete/nc", body, engineer)
	if w.Code != http.StatusCreated {
		t.Fatalf("raise status = %d, body = %s", w.Code, w.Body.String())
	}
	nc := testutil.ParseResponse(w)
	ncID, _ := nc["id"].(string)
	year := time.Now().Year()
	if want := fmt.Sprintf("NC-TWR-A-%d-0001", year); nc["nc_number"] != want {
		t.Errorf("nc_number = %v, want %s", nc["nc_number"], want)
	}

	// Dashboard is readable by anyone on the project.
	w = testutil.DoRequest(r, "GET", "/api/concrete/nc/dashboard?project_id=proj1", nil, watchman)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body = %s", w.Code, w.Body.String())
	}
	dash := testutil.ParseResponse(w)
	if dash["total"] != float64(1) || dash["open"] != float64(1) {
		t.Errorf("dashboard = %v", dash)
	}

	// Terminal-state violations surface as 409.
	w = testutil.DoRequest(r, "POST",
		fmt.Sprintf("/api/concrete/nc/%s/verify?project_id=proj1", ncID),
		map[string]interface{}{"notes": "n/a"}, engineer)
	if w.Code != http.StatusConflict {
		t.Fatalf("skip-ahead verify status = %d, want 409", w.Code)
	}

	// Cross-project reads are indistinguishable from missing rows.
	testutil.SeedProject(t, db, "proj2", "TWR-B", "Tower B")
	testutil.SeedMembership(t, db, "proj2", "qe1", entity.RoleQualityEngineer)
	w = testutil.DoRequest(r, "GET",
		fmt.Sprintf("/api/concrete/nc/%s?project_id=proj2", ncID), nil, engineer)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-project status = %d, want 404", w.Code)
	}
}
