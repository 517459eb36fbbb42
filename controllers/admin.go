package controllers

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"mirrorapi/models"
)

// AdminController manages provider credentials and persona prompt blocks.
// Everything here requires superadmin access; generation behavior changes
// take effect on the next request without restart.
type AdminController struct {
}

func (m *AdminController) AdminRoutes(g *echo.Group) {
	g.GET("/providers", m.listProviders)
	g.POST("/providers", m.upsertProvider)
	g.POST("/providers/:id/deactivate", m.deactivateProvider)
	g.GET("/personas", m.listPersonas)
	g.POST("/personas", m.upsertPersona)
}

func (m *AdminController) listProviders(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	var configs []models.ProviderConfig
	if err := db.Order("id").Find(&configs).Error; err != nil {
		sentry.CaptureException(err)
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, echo.Map{"providers": configs})
}

func (m *AdminController) upsertProvider(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	var in models.ProviderConfigIn
	if err := c.Bind(&in); err != nil {
		return echo.ErrBadRequest
	}
	if err := c.Validate(&in); err != nil {
		return err
	}

	config := models.ProviderConfig{
		Provider: in.Provider,
		Section:  models.Section(in.Section),
		Alias:    in.Alias,
		ApiKey:   in.ApiKey,
		IsActive: *in.IsActive,
		Settings: in.Settings,
	}

	// one row per provider+section+alias, updated in place
	var existing models.ProviderConfig
	result := db.Where("provider = ? and section = ? and alias = ?", in.Provider, in.Section, in.Alias).Limit(1).Find(&existing)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return echo.ErrInternalServerError
	}
	if result.RowsAffected > 0 {
		config.ID = existing.ID
		config.CreatedAt = existing.CreatedAt
	}
	if err := db.Save(&config).Error; err != nil {
		sentry.CaptureException(err)
		return echo.ErrInternalServerError
	}
	fmt.Printf("[Config] Provider config saved, id %v, section %s, active %v\n", config.ID, config.Section, config.IsActive)
	return c.JSON(http.StatusOK, config)
}

func (m *AdminController) deactivateProvider(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	var id uint
	if err := echo.PathParamsBinder(c).Uint("id", &id).BindError(); err != nil {
		return echo.ErrBadRequest
	}
	result := db.Model(&models.ProviderConfig{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return echo.ErrInternalServerError
	}
	if result.RowsAffected == 0 {
		return echo.ErrNotFound
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "deactivated"})
}

func (m *AdminController) listPersonas(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	var personas []models.PersonaConfig
	if err := db.Order("id").Find(&personas).Error; err != nil {
		sentry.CaptureException(err)
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, echo.Map{"personas": personas})
}

func (m *AdminController) upsertPersona(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	var in models.PersonaConfigIn
	if err := c.Bind(&in); err != nil {
		return echo.ErrBadRequest
	}
	if err := c.Validate(&in); err != nil {
		return err
	}

	persona := models.PersonaConfig{
		Section:            models.Section(in.Section),
		HairstyleSysPrompt: in.HairstyleSysPrompt,
		ColorSysPrompt:     in.ColorSysPrompt,
		LookSysPrompt1:     in.LookSysPrompt1,
		LookSysPrompt2:     in.LookSysPrompt2,
		LookSysPrompt3:     in.LookSysPrompt3,
		LookSysPrompt4:     in.LookSysPrompt4,
	}

	var existing models.PersonaConfig
	result := db.Where("section = ?", in.Section).Limit(1).Find(&existing)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return echo.ErrInternalServerError
	}
	if result.RowsAffected > 0 {
		persona.ID = existing.ID
		persona.CreatedAt = existing.CreatedAt
	}
	if err := db.Save(&persona).Error; err != nil {
		sentry.CaptureException(err)
		return echo.ErrInternalServerError
	}
	fmt.Printf("[Config] Persona config saved, id %v, section %s\n", persona.ID, persona.Section)
	return c.JSON(http.StatusOK, persona)
}
