package routes

import (
	"net/http"

	handler "clinic-operations-backend/internal/handlers"
	"clinic-operations-backend/internal/services/cashledger"
	"clinic-operations-backend/internal/services/lifecycle"
	"clinic-operations-backend/internal/services/reconciliation"
	"clinic-operations-backend/internal/services/reminder"

	"github.com/gin-gonic/gin"
)

// Services are the collaborators the HTTP surface drives.
type Services struct {
	Lifecycle      *lifecycle.Service
	Reconciliation *reconciliation.ReconciliationService
	Ledger         *cashledger.Poster
	Reminders      *reminder.Scheduler
}

func RegisterRoutes(r *gin.Engine, s Services) {
	appointments := handler.NewAppointmentHandler(s.Lifecycle)
	billing := handler.NewBillingHandler(s.Reconciliation, s.Ledger)
	reminders := handler.NewReminderHandler(s.Reminders)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	appt := api.Group("/appointments")
	{
		appt.POST("", appointments.Schedule)
		appt.GET("", appointments.List)
		appt.GET("/:id", appointments.Get)
		appt.GET("/:id/history", appointments.History)
		appt.GET("/:id/can-execute", appointments.CanExecute)
		appt.POST("/:id/cancel", appointments.Cancel)
		appt.POST("/:id/reschedule", appointments.Reschedule)
		appt.POST("/:id/done", appointments.MarkDone)
	}

	invoices := api.Group("/invoices")
	{
		invoices.GET("", billing.ListInvoices)
		invoices.GET("/:id", billing.GetInvoice)
		invoices.POST("/:id/payments", billing.RecordPayment)
		invoices.POST("/:id/reconcile", billing.Reconcile)
	}

	ledger := api.Group("/ledger")
	{
		ledger.GET("", billing.ListLedger)
		ledger.GET("/balance", billing.Balance)
		ledger.GET("/coverage", billing.Coverage)
	}

	api.GET("/reminders", reminders.Armed)
}
