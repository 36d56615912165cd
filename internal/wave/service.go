package wave

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service discovers the fleet and pulls one document per device per day.
// Work is strictly sequential: days ascending, devices in roster order.
type Service struct {
	client Client
	store  Store
	log    zerolog.Logger
}

// NewService creates a new Service.
func NewService(client Client, store Store, log zerolog.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		log:    log,
	}
}

// Run enumerates devices and pulls the given range for all of them.
func (s *Service) Run(ctx context.Context, rng DateRange) (Result, error) {
	log := s.log.With().Str("run_id", uuid.NewString()).Logger()
	log.Info().Msgf("Requesting data between %s and %s", rng.Start, rng.End)

	devices, err := s.listDevices(ctx, log)
	if err != nil {
		return Result{}, err
	}

	res, err := s.pull(ctx, log, devices, rng)
	if err != nil {
		return res, err
	}

	log.Info().Msgf("Data saved to %s", s.store.Root())
	log.Info().
		Int("days", res.Days).
		Int("attempted", res.Attempted).
		Int("written", res.Written).
		Int("failed", res.Failed).
		Msg("Complete")
	return res, nil
}

// ListDevices fetches the fleet roster. Any failure is reported as ErrNoDevices.
func (s *Service) ListDevices(ctx context.Context) ([]Device, error) {
	return s.listDevices(ctx, s.log)
}

// Pull fetches and persists every (device, day) pair of rng.
// A failed fetch is logged and skipped; write failures and malformed
// payloads abort the pull.
func (s *Service) Pull(ctx context.Context, devices []Device, rng DateRange) (Result, error) {
	return s.pull(ctx, s.log, devices, rng)
}

func (s *Service) listDevices(ctx context.Context, log zerolog.Logger) ([]Device, error) {
	devices, err := s.client.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevices, err)
	}
	if len(devices) == 0 {
		log.Warn().Msg("Device roster is empty")
	}
	log.Info().Msgf("Devices found: %v", devices)
	return devices, nil
}

func (s *Service) pull(ctx context.Context, log zerolog.Logger, devices []Device, rng DateRange) (Result, error) {
	var res Result

	if err := s.store.Prepare(devices); err != nil {
		return res, fmt.Errorf("prepare output directories: %w", err)
	}

	if rng.Empty() {
		log.Warn().Msgf("Start date %s is after end date %s; nothing to pull", rng.Start, rng.End)
		return res, nil
	}

	for _, day := range rng.Days() {
		log.Info().Msgf("Collecting data for %s", day)
		res.Days++
		window := day.Window()

		for _, device := range devices {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Attempted++

			doc, err := s.client.FetchWaveData(ctx, device, window)
			if err != nil {
				if fatal(err) {
					return res, fmt.Errorf("fetch %s on %s: %w", device, day, err)
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
				res.Failed++
				log.Warn().Str("device", string(device)).Str("day", day.String()).
					Msgf("Failed to receive data for %s", device)
				continue
			}

			if err := s.store.Save(device, day, doc); err != nil {
				return res, fmt.Errorf("save %s on %s: %w", device, day, err)
			}
			res.Written++
			log.Debug().Str("device", string(device)).Str("day", day.String()).Msg("saved wave data")
		}
	}

	return res, nil
}
