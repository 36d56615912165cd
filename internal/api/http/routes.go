package httpapi

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/spotter-data-pull/internal/store"
	"github.com/i474232898/spotter-data-pull/internal/wave"
)

var validate = validator.New()

// Archive is the read side of the artifact store.
type Archive interface {
	Devices() ([]wave.Device, error)
	Latest(device wave.Device) (wave.Day, json.RawMessage, error)
	Range(device wave.Device, rng wave.DateRange) ([]store.Document, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, archive Archive) {
	v1 := app.Group("/api/v1")

	v1.Get("/devices", func(c *fiber.Ctx) error {
		devices, err := archive.Devices()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list devices")
		}
		return c.JSON(fiber.Map{"devices": devices})
	})

	v1.Get("/devices/:id/wave-data/latest", func(c *fiber.Ctx) error {
		device, err := parseDevice(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		day, doc, err := archive.Latest(device)
		if err != nil {
			return archiveError(err, "no wave data for requested device")
		}

		return c.JSON(fiber.Map{
			"spotterId": device,
			"date":      day.String(),
			"data":      doc,
		})
	})

	v1.Get("/devices/:id/wave-data", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rng := wave.DateRange{Start: wave.DayOf(req.From), End: wave.DayOf(req.To)}
		docs, err := archive.Range(req.Device, rng)
		if err != nil {
			return archiveError(err, "no wave data for requested range")
		}

		days := make([]fiber.Map, 0, len(docs))
		for _, d := range docs {
			days = append(days, fiber.Map{"date": d.Day.String(), "data": d.Data})
		}

		return c.JSON(fiber.Map{
			"spotterId": req.Device,
			"from":      rng.Start.String(),
			"to":        rng.End.String(),
			"days":      days,
		})
	})
}

func archiveError(err error, notFound string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFound)
	case errors.Is(err, store.ErrInvalidDevice):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read wave data")
	}
}

// deviceParam holds the path parameter identifying a device.
type deviceParam struct {
	ID string `validate:"required,max=64"`
}

func parseDevice(c *fiber.Ctx) (wave.Device, error) {
	p := deviceParam{ID: c.Params("id")}
	if err := validate.Struct(p); err != nil {
		return "", err
	}
	return wave.Device(p.ID), nil
}

// historyQuery holds query parameters for the range endpoint.
type historyQuery struct {
	Device wave.Device `validate:"required"`
	From   time.Time   `validate:"required"`
	To     time.Time   `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	device, err := parseDevice(c)
	if err != nil {
		return err
	}
	h.Device = device

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := wave.ParseDay(fromStr)
	if err != nil {
		return err
	}
	to, err := wave.ParseDay(toStr)
	if err != nil {
		return err
	}

	h.From = from.Time()
	h.To = to.Time()
	return nil
}
