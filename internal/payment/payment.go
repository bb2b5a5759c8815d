package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrDeclined = errors.New("payment declined")

// Gateway is the external payment collaborator. Authorize places a hold for
// the given amount, Capture settles a previously authorized hold. Settlement
// internals are out of scope for the engine.
type Gateway interface {
	Authorize(ctx context.Context, amount float64) (token string, err error)
	Capture(ctx context.Context, token string) error
}

// LoggingGateway authorizes everything. It stands in for a real gateway in
// local runs; tests use their own fakes.
type LoggingGateway struct{}

func (LoggingGateway) Authorize(_ context.Context, amount float64) (string, error) {
	if amount < 0 {
		return "", fmt.Errorf("payment: negative amount %.2f", amount)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("payment: failed to generate token: %w", err)
	}
	token := "auth-" + id.String()
	log.Info().Str("token", token).Float64("amount", amount).Msg("payment authorized")
	return token, nil
}

func (LoggingGateway) Capture(_ context.Context, token string) error {
	if token == "" {
		return errors.New("payment: empty capture token")
	}
	log.Info().Str("token", token).Msg("payment captured")
	return nil
}
