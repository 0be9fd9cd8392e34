package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nomadaapp/nomada/app/models"
	"github.com/nomadaapp/nomada/app/repository"
	"github.com/nomadaapp/nomada/internal/pkg/waitlist"
)

// SubscriberController handles the waitlist form.
type SubscriberController struct {
	waitlist *waitlist.Service
}

func NewSubscriberController(svc *waitlist.Service) *SubscriberController {
	return &SubscriberController{waitlist: svc}
}

type joinRequest struct {
	Email string `json:"email" form:"email"`
}

func subscriberJSON(s *models.Subscriber) fiber.Map {
	return fiber.Map{
		"id":         s.ID,
		"email":      s.Email,
		"status":     s.Status,
		"created_at": s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleJoin adds an address to the waitlist. The welcome email is sent in
// the background and never fails the request.
func (sc *SubscriberController) HandleJoin(c *fiber.Ctx) error {
	var req joinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	subscriber, err := sc.waitlist.Join(c.UserContext(), req.Email)
	switch {
	case errors.Is(err, waitlist.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_email", "message": "Please enter a valid email address"})
	case errors.Is(err, repository.ErrSubscriberExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_subscribed", "message": "This email is already on the waitlist"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to join the waitlist"})
	}

	return c.Status(fiber.StatusCreated).JSON(subscriberJSON(subscriber))
}

func (sc *SubscriberController) HandleDelete(c *fiber.Ctx) error {
	err := sc.waitlist.Remove(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, repository.ErrSubscriberNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscriber not found"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "Error deleting subscriber"})
	}
	return c.JSON(fiber.Map{"success": true})
}
