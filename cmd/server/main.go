package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"chatsync/infrastructure/db"
	"chatsync/infrastructure/files"
	"chatsync/infrastructure/store"
	httpHandler "chatsync/internal/delivery/http"
	"chatsync/internal/delivery/websocket"
	"chatsync/internal/repository"
	"chatsync/internal/usecase"
	"chatsync/pkg/jwt"
	"chatsync/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; config may come from the environment itself.
	_ = godotenv.Load()

	log := logger.New(os.Getenv("DEBUG") != "")
	defer log.Sync()

	ctx := context.Background()

	// Without MONGODB_URI the server runs on the in-memory store,
	// enough for a single node and local development.
	var docStore store.Store
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI != "" {
		mongoDbName := os.Getenv("MONGODB_DATABASE")
		if mongoDbName == "" {
			mongoDbName = "chatsync"
		}
		mongoDb, err := db.NewMongo(ctx, mongoURI, mongoDbName)
		if err != nil {
			log.Fatal("mongodb connection failed", zap.Error(err))
		}
		defer mongoDb.Close(ctx)
		log.Info("connected to mongodb", zap.String("database", mongoDbName))

		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			log.Fatal("REDIS_ADDR is required when MONGODB_URI is set")
		}
		rdb, err := db.NewRedis(ctx, redisAddr)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer rdb.Close()

		serverID := os.Getenv("SERVER_ID")
		if serverID == "" {
			serverID = "server-1"
		}
		log.Info("connected to redis", zap.String("addr", redisAddr), zap.String("serverId", serverID))

		mongoStore := store.NewMongoStore(mongoDb.DB, rdb, serverID, log)
		go mongoStore.Run(ctx)
		docStore = mongoStore
	} else {
		log.Info("using in-memory store (single server)")
		docStore = store.NewMemStore()
	}

	convRepo := repository.NewConversationRepository(docStore)
	msgRepo := repository.NewMessageRepository(docStore)
	userRepo := repository.NewUserRepository(docStore)

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	fileStore, err := files.NewDiskStore(uploadDir, "/uploads")
	if err != nil {
		log.Fatal("upload dir setup failed", zap.Error(err))
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-this-in-production"
		log.Warn("using default JWT secret, set JWT_SECRET for production")
	}
	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute)

	messageUc := usecase.NewMessageUsecase(convRepo, msgRepo, fileStore, log)

	websocketH := websocket.NewWebsocketHandler(convRepo, msgRepo, userRepo, messageUc, log)
	httpH := httpHandler.NewHttpHandler(messageUc, log)
	authMiddleware := httpHandler.NewAuthMiddleware(jwtManager)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	httpHandler.MapHttpRoutes(router, httpH, websocketH, authMiddleware, uploadDir)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info("http server is running", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
