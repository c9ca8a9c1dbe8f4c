// Package feedtoken issues the capability tokens that gate a vehicle's public calendar.
package feedtoken

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/logger"
)

// Bytes of entropy in a token.
const tokenBytes = 32

type Authority struct {
	repo garage.TokenRepo
	now  func() time.Time
}

func NewAuthority(repo garage.TokenRepo) Authority {
	return Authority{repo: repo, now: time.Now}
}

// Issue generates a fresh token for the vehicle, replacing any previous one. The old token stops
// working as soon as this returns.
func (a Authority) Issue(ctx context.Context, vehicleID string) (garage.FeedToken, error) {
	if _, err := a.repo.Vehicle(ctx, vehicleID); err != nil {
		return garage.FeedToken{}, err
	}

	raw := securecookie.GenerateRandomKey(tokenBytes)
	if raw == nil {
		return garage.FeedToken{}, errors.New("error generating token: no randomness available")
	}

	tok := garage.FeedToken{
		VehicleID: vehicleID,
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		IssuedAt:  a.now().UTC().Truncate(time.Second),
	}
	if err := a.repo.PutFeedToken(ctx, tok); err != nil {
		return garage.FeedToken{}, fmt.Errorf("error storing token: %w", err)
	}

	slog.InfoContext(logger.Ctx(ctx, slog.String("vehicle_id", vehicleID)), "issued feed token")
	return tok, nil
}

// Verify returns nil iff token is the vehicle's current token. An unknown vehicle, a vehicle
// without a token and a wrong token all come back as [garage.ErrUnauthorized].
func (a Authority) Verify(ctx context.Context, vehicleID, token string) error {
	current, err := a.repo.FeedToken(ctx, vehicleID)
	if errors.Is(err, garage.ErrNotFound) {
		return garage.ErrUnauthorized
	}
	if err != nil {
		return err
	}

	if token == "" || subtle.ConstantTimeCompare([]byte(current.Token), []byte(token)) != 1 {
		return garage.ErrUnauthorized
	}

	return nil
}
