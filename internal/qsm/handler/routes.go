package handler

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omi1811/concretethings-sub000/internal/middleware"
)

// RegisterRoutes wires the full API surface onto the engine.
func RegisterRoutes(r *gin.Engine, h *Handlers, jwtSecret string, logger *zap.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		vehicles := api.Group("/material-vehicles")
		{
			vehicles.POST("", h.Vehicle.Create)
			vehicles.GET("", h.Vehicle.List)
			vehicles.GET("/unlinked", h.Vehicle.Unlinked)
			vehicles.GET("/:id", h.Vehicle.Get)
			vehicles.POST("/:id/exit", h.Vehicle.Exit)
		}

		pours := api.Group("/pour-activities")
		{
			pours.POST("", h.Pour.Create)
			pours.GET("", h.Pour.List)
			pours.GET("/:id", h.Pour.Get)
			pours.PUT("/:id", h.Pour.Update)
			pours.POST("/:id/batches", h.Pour.AddBatch)
			pours.POST("/:id/complete", h.Pour.Complete)
			pours.POST("/:id/cancel", h.Pour.Cancel)
		}

		batches := api.Group("/batches")
		{
			batches.POST("/bulk", h.Batch.BulkCreate)
			batches.GET("", h.Batch.List)
			batches.GET("/:id", h.Batch.Get)
			batches.POST("/:id/verify", h.Batch.Verify)
			batches.DELETE("/:id", h.Batch.Delete)
		}

		cubeTests := api.Group("/cube-tests")
		{
			cubeTests.POST("", h.CubeTest.Plan)
			cubeTests.GET("", h.CubeTest.List)
			cubeTests.GET("/:id", h.CubeTest.Get)
			cubeTests.POST("/:id/results", h.CubeTest.RecordResults)
			cubeTests.POST("/:id/sign", h.CubeTest.Sign)
		}

		reminders := api.Group("/test-reminders")
		{
			reminders.GET("", h.Reminder.List)
			reminders.POST("/:id/acknowledge", h.Reminder.Acknowledge)
		}

		concrete := api.Group("/concrete")
		{
			nc := concrete.Group("/nc")
			{
				nc.POST("", h.NC.Raise)
				nc.GET("", h.NC.List)
				nc.GET("/dashboard", h.NC.Dashboard)
				nc.GET("/:id", h.NC.Get)
				nc.POST("/:id/acknowledge", h.NC.Acknowledge)
				nc.POST("/:id/respond", h.NC.Respond)
				nc.POST("/:id/resolve", h.NC.Resolve)
				nc.POST("/:id/verify", h.NC.Verify)
				nc.POST("/:id/close", h.NC.Close)
				nc.POST("/:id/reject", h.NC.Reject)
				nc.POST("/:id/transfer", h.NC.Transfer)
			}
			concrete.GET("/contractors/:id/score", h.NC.ContractorScore)
		}

		api.GET("/audit/:entity_type/:entity_id", h.Audit.ListByEntity)
		api.GET("/notifications", h.Notification.List)
		api.GET("/events/stream", h.SSE.Stream)

		jobs := api.Group("/background-jobs")
		{
			jobs.POST("/run-vehicle-check", h.Jobs.RunVehicleCheck)
			jobs.POST("/run-test-reminders", h.Jobs.RunTestReminders)
			jobs.POST("/run-missed-test-check", h.Jobs.RunMissedTestCheck)
			jobs.POST("/run-all", h.Jobs.RunAll)
		}
	}
}
