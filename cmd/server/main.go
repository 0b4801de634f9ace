package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ritachen3656251-design/Danlink/internal/alerts"
	"github.com/ritachen3656251-design/Danlink/internal/auth"
	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/chatlist"
	"github.com/ritachen3656251-design/Danlink/internal/db"
	appmw "github.com/ritachen3656251-design/Danlink/internal/middleware"
	"github.com/ritachen3656251-design/Danlink/internal/notify"
	"github.com/ritachen3656251-design/Danlink/internal/profile"
	"github.com/ritachen3656251-design/Danlink/internal/store"
	"github.com/ritachen3656251-design/Danlink/internal/task"
	"github.com/ritachen3656251-design/Danlink/internal/transaction"
)

func main() {
	_ = godotenv.Load()

	// Init subsystems
	db.Init()
	alerts.Init()
	defer alerts.Close()

	st := store.NewPostgres(db.Conn)

	// Conversation identity + realtime plumbing
	resolver := chat.NewResolver(st.Conversations)
	hub := chat.NewHub(st.Tasks, st.Conversations)
	tracker := notify.NewTracker(st.Messages, st.Profiles, hub)
	projector := chatlist.NewProjector(st.Conversations, st.Messages, st.Tasks, st.Profiles)
	mailObserver := &alerts.MailObserver{Profiles: st.Profiles}

	chatHandler := &chat.Handler{
		Convs:     st.Conversations,
		Msgs:      st.Messages,
		Tasks:     st.Tasks,
		Resolver:  resolver,
		Observers: []chat.MessageObserver{hub, tracker, projector, mailObserver},
	}
	taskHandler := &task.Handler{
		Tasks:    st.Tasks,
		Accs:     st.Acceptances,
		Profiles: st.Profiles,
		Resolver: resolver,
		Chat:     chatHandler,
	}
	txHandler := &transaction.Handler{Machine: &transaction.Machine{
		Tasks:    st.Tasks,
		Accs:     st.Acceptances,
		Msgs:     st.Messages,
		Profiles: st.Profiles,
		Resolver: resolver,
		Chat:     chatHandler,
	}}
	notifyHandler := &notify.Handler{Tracker: tracker}
	listHandler := &chatlist.Handler{Projector: projector}

	// Poll producer: periodic unread rebuild backing up the push path
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	defer cancelPoll()
	go tracker.Run(pollCtx, 30*time.Second)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Health
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	registerAuthRoutes(e)

	// Authenticated group
	g := e.Group("")
	g.Use(appmw.JWTMiddleware)

	// Me and profiles
	g.GET("/me", auth.Me)
	g.GET("/profiles/:id", profile.GetPublicProfile)
	g.PATCH("/profiles/me", profile.UpdateProfile)

	// Task hall
	g.POST("/tasks", taskHandler.Create)
	g.GET("/tasks", taskHandler.ListOpen)
	g.GET("/tasks/mine", taskHandler.Mine)
	g.GET("/tasks/:id", taskHandler.Get)
	g.POST("/tasks/:id/accept", taskHandler.Accept)

	// Transaction lifecycle
	g.GET("/tasks/:id/transaction", txHandler.Status)
	g.POST("/tasks/:id/transaction/deliver", txHandler.Deliver)
	g.POST("/tasks/:id/transaction/confirm", txHandler.ConfirmAndPay)
	g.POST("/tasks/:id/transaction/receipt", txHandler.ConfirmReceipt)

	// Conversations and messages
	g.POST("/conversations/resolve", chatHandler.ResolveConversation)
	g.GET("/conversations", listHandler.List)
	g.GET("/conversations/:id", chatHandler.GetConversation)
	g.GET("/conversations/:id/messages", chatHandler.ListMessages)
	g.POST("/conversations/:id/messages", chatHandler.SendMessage)
	g.POST("/conversations/:id/read", notifyHandler.MarkConversationRead)
	g.POST("/conversations/:id/focus", notifyHandler.Focus)
	g.DELETE("/conversations/:id/focus", notifyHandler.Unfocus)

	// Unread badge
	g.GET("/unread", notifyHandler.GetUnread)

	// Realtime feed
	g.GET("/ws", hub.Serve)

	startServer(e)
}

// registerAuthRoutes mounts the public credential endpoints behind per-IP
// rate limiting to protect signup/login from abuse.
func registerAuthRoutes(e *echo.Echo) {
	authGroup := e.Group("")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", auth.Signup)
	authGroup.POST("/login", auth.Login)
	authGroup.POST("/auth/password/request", auth.RequestPasswordReset)
	authGroup.POST("/auth/password/reset", auth.ResetPassword)
}

func startServer(e *echo.Echo) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("API server listening on :%s", port)
	if err := e.Start(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
