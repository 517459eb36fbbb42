package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"mirrorapi/models"
	"mirrorapi/services"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	googleService services.GoogleServiceProvider,
	awsService services.MediaStoreProvider,
	urlCache services.URLCacheServiceProvider,
	alerter services.OperatorAlerter,
	firebaseApp *firebase.App,
	asynqClient *asynq.Client,
	asynqInspector *asynq.Inspector,
) *echo.Echo {

	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("platform", models.ValidatePlatform)
	v.RegisterValidation("section", models.ValidateSection)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			c.Set("__asynqinspector", asynqInspector)
			c.Set("__alerter", alerter)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	authGroup := e.Group("auth")
	controller := AuthController{Google: googleService, FirebaseApp: firebaseApp}
	controller.ProfileRoutes(authGroup)

	mirrorController := MirrorController{AWSService: awsService, URLCache: urlCache, FirebaseApp: firebaseApp}
	mirrorGroup := e.Group("/mirror", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	mirrorController.MirrorRoutes(mirrorGroup)

	adminController := AdminController{}
	adminGroup := e.Group("/config/admin", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware, SuperadminMiddleware)
	adminController.AdminRoutes(adminGroup)

	fmt.Println("Server configured")
	return e
}
