package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	stderrors "errors"

	pkgerrors "github.com/investapk/investa-backend/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const referralAttempts = 10

// ReferralCode lazily issues a user's referral code on first request:
// four letters from the username plus four random digits, retried on
// collision. After ten collisions the last generated code is assigned
// anyway; uniqueness here is best effort, not an invariant.
func (s *investService) ReferralCode(ctx context.Context, userID int64) (string, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "ReferralCode")
	defer span.End()

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to get user", "user_id", userID, "error", err)
		return "", err
	}
	if user.ReferralCode != "" {
		return user.ReferralCode, nil
	}

	var code string
	for i := 0; i < referralAttempts; i++ {
		code = generateReferralCode(user.Username)
		_, err := s.userRepo.GetByReferralCode(ctx, code)
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			break
		}
		if err != nil {
			span.RecordError(err)
			slog.Error("failed to check referral code", "code", code, "error", err)
			return "", err
		}
		slog.Warn("referral code collision", "user_id", userID, "code", code, "attempt", i+1)
	}

	if err := s.userRepo.SetReferralCode(ctx, userID, code); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to assign referral code")
		slog.Error("failed to assign referral code", "user_id", userID, "code", code, "error", err)
		return "", err
	}

	slog.Info("referral code issued", "user_id", userID, "code", code)
	return code, nil
}

func generateReferralCode(username string) string {
	letters := make([]rune, 0, 4)
	for _, r := range strings.ToUpper(username) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
			if len(letters) == 4 {
				break
			}
		}
	}
	for len(letters) < 4 {
		letters = append(letters, 'X')
	}
	return fmt.Sprintf("%s%04d", string(letters), rand.Intn(10000))
}
