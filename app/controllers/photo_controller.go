package controllers

import (
	"errors"
	"fmt"
	"html"
	"strconv"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/photoupload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/poller"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/upload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// PhotoController serves upload, status and detail for a user's photos.
type PhotoController struct {
	uploads  *photoupload.Service
	photos   repository.PhotoRepository
	captions repository.CaptionRepository
}

func NewPhotoController(uploads *photoupload.Service, repos *repository.Repositories) *PhotoController {
	return &PhotoController{
		uploads:  uploads,
		photos:   repos.Photo,
		captions: repos.Caption,
	}
}

// HandleUpload accepts multipart fields photo, title and description.
func (pc *PhotoController) HandleUpload(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	fh, err := c.FormFile("photo")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "photo file is required")
	}
	if fh.Size > upload.MaxFileSize {
		return jsonError(c, fiber.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Sprintf("photos may be at most %d MB", upload.MaxFileSize>>20))
	}
	file, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	res, err := pc.uploads.Create(c.UserContext(), uc, photoupload.Input{
		Filename:    fh.Filename,
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Size:        fh.Size,
		Body:        file,
	})
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return jsonError(c, fiber.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		return jsonError(c, fiber.StatusBadRequest, "unsupported_type", err.Error())
	case errors.Is(err, upload.ErrInvalidForm):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	case err != nil:
		fiberlog.Errorf("[Upload] Upload for user %d failed: %v", uc.UserID, err)
		return fiber.ErrInternalServerError
	}

	if res.Refused() {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "quota_exceeded",
			"reason":  res.Decision.Reason,
			"message": res.Decision.Message,
		})
	}

	body := fiber.Map{
		"id":         res.Photo.ID,
		"processing": true,
		"status_url": StatusURL(res.Photo.ID),
	}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

// HandleStatus is the polling endpoint. processing=false is terminal.
func (pc *PhotoController) HandleStatus(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	id, err := paramID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	photo, err := pc.photos.GetByIDForUser(id, uc.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "photo not found")
	}
	if err != nil {
		return fmt.Errorf("load photo %d: %w", id, err)
	}
	count, err := pc.captions.CountByPhotoID(photo.ID)
	if err != nil {
		return fmt.Errorf("count captions for photo %d: %w", photo.ID, err)
	}

	status := poller.Status{
		ID:           photo.ID,
		Processing:   !photo.Processed,
		Processed:    photo.Processed,
		Stage:        string(imageprocessor.StageFor(photo.ID, photo.Processed)),
		CaptionCount: count,
		StatusURL:    StatusURL(photo.ID),
	}
	c.Set(poller.HeaderProcessing, strconv.FormatBool(status.Processing))

	if c.Query("format") == "html" {
		c.Type("html")
		return c.SendString(fmt.Sprintf(
			`<div id="photo-status-%d" data-photo-polling data-processing="%t" data-stage="%s" data-status-url="%s"></div>`,
			status.ID, status.Processing, html.EscapeString(status.Stage), html.EscapeString(status.StatusURL),
		))
	}
	return c.JSON(status)
}

// HandleShow returns the photo with its captions and variants.
func (pc *PhotoController) HandleShow(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	id, err := paramID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	photo, err := pc.photos.GetWithCaptionsAndVariants(id, uc.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "photo not found")
	}
	if err != nil {
		return fmt.Errorf("load photo %d: %w", id, err)
	}

	return c.JSON(fiber.Map{
		"photo":      photo,
		"processing": !photo.Processed,
		"stage":      imageprocessor.StageFor(photo.ID, photo.Processed),
		"status_url": StatusURL(photo.ID),
	})
}
