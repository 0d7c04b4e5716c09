package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/middleware"
	"github.com/noah-isme/booknova-api/internal/models"
)

// Router bundles everything needed to mount the API.
type Router struct {
	Prefix string
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger

	Auth               *AuthHandler
	Users              *UserHandler
	Members            *MemberHandler
	Books              *BookHandler
	Loans              *LoanHandler
	MembershipRequests *MembershipRequestHandler
	Me                 *MeHandler
	Exports            *ExportHandler
	Metrics            *MetricsHandler
}

// Register mounts every route on r.
func (rt Router) Register(r *gin.Engine) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)

	api := r.Group(rt.Prefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/register", rt.Auth.Register)
	auth.POST("/login", rt.Auth.Login)
	auth.POST("/refresh", rt.Auth.Refresh)

	api.GET("/exports/:token", middleware.OptionalJWT(rt.Tokens), middleware.Audit(rt.Audit, rt.Logger, "EXPORT_DOWNLOAD", "export"), rt.Exports.Download)

	session := api.Group("/auth")
	session.Use(middleware.JWT(rt.Tokens))
	session.POST("/logout", rt.Auth.Logout)
	session.POST("/change-password", rt.Auth.ChangePassword)
	session.GET("/me", rt.Auth.Me)

	secured := api.Group("")
	secured.Use(middleware.JWT(rt.Tokens), middleware.WriteAccess())

	secured.GET("/books", rt.Books.List)
	secured.GET("/books/isbn/:isbn", rt.Books.GetByISBN)
	secured.GET("/books/:id", rt.Books.Get)
	secured.GET("/books/:id/availability", rt.Books.Availability)

	secured.POST("/membership-requests", rt.MembershipRequests.Create)
	secured.GET("/membership-requests/mine", rt.MembershipRequests.Mine)

	me := secured.Group("/me")
	me.GET("/member", rt.Me.Member)
	me.GET("/eligibility", rt.Me.Eligibility)
	me.GET("/loans", rt.Me.Loans)
	me.POST("/loans", rt.Me.Borrow)
	me.POST("/loans/:id/return", rt.Me.Return)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))

	users := admin.Group("/users")
	users.GET("", rt.Users.List)
	users.POST("", rt.Users.Create)
	users.GET("/:id", rt.Users.Get)
	users.PUT("/:id", rt.Users.Update)
	users.POST("/:id/activate", rt.Users.Activate)
	users.POST("/:id/deactivate", rt.Users.Deactivate)
	users.DELETE("/:id", rt.Users.Delete)

	members := admin.Group("/members")
	members.GET("", rt.Members.List)
	members.POST("", rt.Members.Create)
	members.GET("/:id", rt.Members.Get)
	members.PUT("/:id", rt.Members.Update)
	members.DELETE("/:id", rt.Members.Delete)
	members.POST("/:id/activate", rt.Members.Activate)
	members.POST("/:id/deactivate", rt.Members.Deactivate)
	members.POST("/:id/upgrade", rt.Members.Upgrade)
	members.POST("/:id/downgrade", rt.Members.Downgrade)
	members.GET("/:id/eligibility", rt.Members.Eligibility)
	members.GET("/:id/loans", rt.Members.Loans)

	books := admin.Group("/books")
	books.POST("", rt.Books.Create)
	books.PUT("/:id", rt.Books.Update)
	books.PATCH("/:id/stock", rt.Books.Stock)
	books.DELETE("/:id", rt.Books.Delete)

	loans := admin.Group("/loans")
	loans.GET("", rt.Loans.List)
	loans.POST("", rt.Loans.Create)
	loans.POST("/return", rt.Loans.ReturnByMemberBook)
	loans.GET("/overdue", rt.Loans.Overdue)
	loans.GET("/due", rt.Loans.Due)
	loans.GET("/fine", rt.Loans.CalculateFine)
	loans.GET("/:id", rt.Loans.Get)
	loans.GET("/:id/fine", rt.Loans.Fine)
	loans.POST("/:id/return", rt.Loans.Return)
	loans.POST("/:id/extend", rt.Loans.Extend)

	requests := admin.Group("/membership-requests")
	requests.GET("", rt.MembershipRequests.List)
	requests.GET("/pending", rt.MembershipRequests.Pending)
	requests.GET("/:id", rt.MembershipRequests.Get)
	requests.POST("/:id/approve", rt.MembershipRequests.Approve)
	requests.POST("/:id/reject", rt.MembershipRequests.Reject)

	exports := admin.Group("/exports")
	exports.POST("/books", rt.Exports.Books)
	exports.POST("/overdue-loans", rt.Exports.OverdueLoans)

	admin.GET("/metrics/summary", rt.Metrics.Summary)
}
