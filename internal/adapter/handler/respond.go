package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bind parses the JSON body into req and validates its struct tags.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return domain.WrapError(domain.KindInvalidInput, "Invalid body", err)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return domain.NewError(domain.KindInvalidInput, strings.Join(msgs, "; "))
		}
		return domain.WrapError(domain.KindInvalidInput, "Invalid body", err)
	}
	return nil
}

// StatusFor maps a rejection kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindInvalidFormat, domain.KindSelfTransfer,
		domain.KindLimitExceeded, domain.KindInsufficientFunds:
		return http.StatusBadRequest
	case domain.KindRecipientNotFound, domain.KindAccountNotFound, domain.KindSenderNotFound:
		return http.StatusNotFound
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error", "kind", "limit_kind"}. Errors that are not
// *domain.Error never leak their text.
func fail(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"kind":  domain.KindPersistenceFailure,
		})
	}
	body := fiber.Map{"error": de.Message, "kind": de.Kind}
	if de.LimitKind != "" {
		body["limit_kind"] = de.LimitKind
	}
	return c.Status(StatusFor(de.Kind)).JSON(body)
}

func notFoundOr500(c *fiber.Ctx, err error, what string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": what + " not found"})
	}
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch " + what})
}
