package router

import (
	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/handler"
	"github.com/lingoria/school-ops-api/internal/middleware"
	"github.com/lingoria/school-ops-api/internal/models"
	"github.com/lingoria/school-ops-api/internal/service"
)

// Deps carries every handler the router mounts plus the services the
// route middleware needs.
type Deps struct {
	Auth          *handler.AuthHandler
	Students      *handler.StudentHandler
	Teachers      *handler.TeacherHandler
	Cohorts       *handler.CohortHandler
	Classes       *handler.ClassHandler
	Enrollments   *handler.EnrollmentHandler
	Attendance    *handler.AttendanceHandler
	Booking       *handler.BookingHandler
	FollowUps     *handler.FollowUpHandler
	Announcements *handler.AnnouncementHandler
	Chat          *handler.ChatHandler
	Catalog       *handler.CatalogHandler

	AuthService *service.AuthService
	Metrics     *service.MetricsService
}

// Register mounts all API routes under the given prefix. Public routes
// carry their own credentials (login body, signed export token); everything
// else sits behind JWT with role checks per resource.
func Register(r *gin.Engine, prefix string, d Deps) {
	api := r.Group(prefix)
	api.Use(middleware.Metrics(d.Metrics))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher)

	// Public.
	api.POST("/auth/login", d.Auth.Login)
	api.POST("/auth/refresh", d.Auth.Refresh)
	api.GET("/public/cohorts/beginner", d.Cohorts.AvailableBeginner)
	api.GET("/attendance/exports/:id/download", d.Attendance.Download)

	auth := api.Group("")
	auth.Use(middleware.JWT(d.AuthService))

	// Session management for any authenticated user.
	auth.GET("/auth/me", d.Auth.Me)
	auth.POST("/auth/logout", d.Auth.Logout)
	auth.PUT("/auth/password", d.Auth.ChangePassword)

	// Students and their touchpoint timeline are back-office only.
	students := auth.Group("/students", staff)
	{
		students.GET("", d.Students.List)
		students.POST("", d.Students.Create)
		students.GET("/:id", d.Students.Get)
		students.PUT("/:id", d.Students.Update)
		students.DELETE("/:id", d.Students.Delete)
		students.GET("/:id/touchpoints", d.Students.ListTouchpoints)
		students.POST("/:id/touchpoints", d.Students.CreateTouchpoint)
	}

	// Teachers can see the roster and their own schedule; mutations stay
	// with staff.
	teachers := auth.Group("/teachers")
	{
		teachers.GET("", anyRole, d.Teachers.List)
		teachers.GET("/:id", anyRole, d.Teachers.Get)
		teachers.GET("/:id/workload", anyRole, d.Teachers.Workload)
		teachers.GET("/:id/classes", anyRole, d.Teachers.Upcoming)
		teachers.POST("", staff, d.Teachers.Create)
		teachers.PUT("/:id", staff, d.Teachers.Update)
		teachers.POST("/availability", staff, d.Teachers.Availability)
	}

	cohorts := auth.Group("/cohorts")
	{
		cohorts.GET("", anyRole, d.Cohorts.List)
		cohorts.GET("/:id", anyRole, d.Cohorts.Get)
		cohorts.POST("", staff, d.Cohorts.Create)
		cohorts.PUT("/:id", staff, d.Cohorts.Update)
		cohorts.GET("/:id/sessions", anyRole, d.Cohorts.ListSessions)
		cohorts.POST("/:id/sessions", staff, d.Cohorts.AddSession)
		cohorts.PUT("/:id/sessions/:sessionId", staff, d.Cohorts.UpdateSession)
		cohorts.DELETE("/:id/sessions/:sessionId", staff, d.Cohorts.RemoveSession)
		cohorts.POST("/:id/finalize-setup", staff, d.Cohorts.FinalizeSetup)
		cohorts.POST("/:id/generate-classes", staff, d.Cohorts.GenerateClasses)
		cohorts.GET("/:id/attendance/summary", anyRole, d.Attendance.Summary)
		cohorts.GET(":id/messages", anyRole, d.Chat.List)
		cohorts.POST(":id/messages", anyRole, d.Chat.Post)
	}

	classes := auth.Group("/classes")
	{
		classes.GET("", anyRole, d.Classes.List)
		classes.GET("/:id", anyRole, d.Classes.Get)
		classes.PATCH("/:id", staff, d.Classes.Update)
	}

	enrollments := auth.Group("/enrollments", staff)
	{
		enrollments.GET("", d.Enrollments.List)
		enrollments.POST("", d.Enrollments.Create)
		enrollments.GET("/:id", d.Enrollments.Get)
		enrollments.POST("/:id/transition", d.Enrollments.Transition)
		enrollments.PUT("/:id/notes", d.Enrollments.UpdateNotes)
	}

	// Teachers mark attendance for their own classes.
	attendance := auth.Group("/attendance")
	{
		attendance.GET("", anyRole, d.Attendance.List)
		attendance.POST("/bulk", anyRole, d.Attendance.BulkMark)
		attendance.POST("/exports", staff, d.Attendance.Export)
	}

	booking := auth.Group("/class-booking", staff)
	{
		booking.POST("/eligibility", d.Booking.CheckEligibility)
		booking.POST("/checkout-url", d.Booking.CheckoutURL)
	}

	sequences := auth.Group("/follow-up-sequences", staff)
	{
		sequences.GET("", d.FollowUps.ListSequences)
		sequences.POST("", d.FollowUps.CreateSequence)
		sequences.GET("/:id", d.FollowUps.GetSequence)
		sequences.PUT("/:id", d.FollowUps.UpdateSequence)
	}

	followUps := auth.Group("/follow-ups", staff)
	{
		followUps.GET("", d.FollowUps.ListInstances)
		followUps.POST("", d.FollowUps.Start)
		followUps.GET("/:id", d.FollowUps.GetInstance)
		followUps.POST("/:id/advance", d.FollowUps.Advance)
		followUps.POST("/:id/stop", d.FollowUps.Stop)
	}

	announcements := auth.Group("/announcements")
	{
		announcements.GET("", anyRole, d.Announcements.List)
		announcements.GET("/feed", anyRole, d.Announcements.Feed)
		announcements.GET("/:id", anyRole, d.Announcements.Get)
		announcements.POST("", staff, d.Announcements.Create)
		announcements.PUT("/:id", staff, d.Announcements.Update)
		announcements.DELETE("/:id", staff, d.Announcements.Delete)
	}

	auth.GET("/levels", anyRole, d.Catalog.ListLevels)

	products := auth.Group("/products")
	{
		products.GET("", anyRole, d.Catalog.ListProducts)
		products.GET("/:id", anyRole, d.Catalog.GetProduct)
		products.POST("", staff, d.Catalog.CreateProduct)
		products.PUT("/:id", staff, d.Catalog.UpdateProduct)
	}
}
