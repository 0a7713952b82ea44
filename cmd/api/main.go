package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"homehub/service-portal/service-portal-backend/internal/config"
	"homehub/service-portal/service-portal-backend/internal/database"
	"homehub/service-portal/service-portal-backend/internal/identity"
	"homehub/service-portal/service-portal-backend/internal/signing"
	"homehub/service-portal/service-portal-backend/pkg/mailer"
	"homehub/service-portal/service-portal-backend/pkg/session"
	"homehub/service-portal/service-portal-backend/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg.Database.GetDatabaseURL())
	if err != nil {
		log.Fatal("Failed to connect to DB:", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	awsCfg, err := loadAWSConfig(cfg)
	if err != nil {
		log.Fatal("Failed to load AWS config:", err)
	}

	// ---------------- COLLABORATORS ----------------
	blob := storage.NewS3Client(awsCfg)
	mail := mailer.NewSESSender(awsCfg, cfg.Email.FromAddress)
	sessions := session.NewStore(db, []byte(cfg.Security.JWTSecret))
	directory := identity.NewDirectory(db)

	// ---------------- SIGNING ----------------
	repo := signing.NewRepository(db)
	otp := signing.NewOTPManager(repo, cfg.Signing.OTPMaxAttempts, cfg.Signing.OTPSingleUse)
	svc := signing.NewService(
		repo,
		otp,
		signing.NewStamper(),
		signing.NewProfessionalAuthorizer(sessions),
		signing.NewClientAuthorizer(),
		directory,
		blob,
		mail,
		cfg.AWS.Bucket,
		signing.Policy{
			OTPTTL:       time.Duration(cfg.Signing.OTPTTLMinutes) * time.Minute,
			OTPSingleUse: cfg.Signing.OTPSingleUse,
			AllowResign:  cfg.Signing.AllowResign,
		},
	)
	handler := signing.NewHandler(svc)

	r := gin.Default()
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)

	// ---------------- PING ----------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API alive!"})
	})

	log.Println("Server running on", cfg.Server.GetServerAddr())
	if err := r.Run(cfg.Server.GetServerAddr()); err != nil {
		log.Fatal(err)
	}
}

func loadAWSConfig(cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, "")))
	}
	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}
