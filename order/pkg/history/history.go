package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/order/pkg/checkout"
	"github.com/Alturino/makelocal/order/pkg/response"
)

const DefaultListLimit = 20

const insertAttempt = `INSERT INTO checkout_attempts (
	id, cart_id, state, item_count, total_items, total_price,
	draft_order_ids, partial_failures, redirect_url, error, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const listAttemptsByCart = `SELECT
	id, cart_id, state, item_count, total_items, total_price,
	draft_order_ids, partial_failures, redirect_url, error, created_at
FROM checkout_attempts
WHERE cart_id = $1
ORDER BY created_at DESC
LIMIT $2`

// Repository keeps finished checkout attempts in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) RecordAttempt(c context.Context, attempt checkout.Attempt) error {
	c, span := otel.Tracer.Start(c, "Repository RecordAttempt")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Repository RecordAttempt").
		Str(log.KeyCartID, attempt.CartID).
		Str(log.KeyCheckoutState, string(attempt.State)).
		Logger()

	cartID, err := uuid.Parse(attempt.CartID)
	if err != nil {
		err = fmt.Errorf("failed parsing cartId=%s with error=%w", attempt.CartID, inErrors.ErrInvalidCartID)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	partialFailures := attempt.PartialFailures
	if partialFailures == nil {
		partialFailures = []response.DraftError{}
	}
	failures, err := json.Marshal(partialFailures)
	if err != nil {
		err = fmt.Errorf("failed marshaling partial failures with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	draftOrderIDs := attempt.DraftOrderIDs
	if draftOrderIDs == nil {
		draftOrderIDs = []string{}
	}

	logger = logger.With().Str(log.KeyProcess, "inserting checkout attempt").Logger()
	_, err = r.pool.Exec(
		c,
		insertAttempt,
		attempt.ID,
		cartID,
		string(attempt.State),
		attempt.ItemCount,
		attempt.TotalItems,
		pgtype.Numeric{
			Int:   attempt.TotalPrice.Coefficient(),
			Exp:   attempt.TotalPrice.Exponent(),
			Valid: true,
		},
		draftOrderIDs,
		failures,
		attempt.RedirectURL,
		attempt.Error,
		attempt.CreatedAt,
	)
	if err != nil {
		err = fmt.Errorf("failed inserting checkout attempt with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Str("attemptId", attempt.ID.String()).Msg("inserted checkout attempt")
	return nil
}

// ListByCart returns the latest attempts of cartID, newest first.
func (r *Repository) ListByCart(c context.Context, cartID string, limit int) ([]checkout.Attempt, error) {
	c, span := otel.Tracer.Start(c, "Repository ListByCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Repository ListByCart").
		Str(log.KeyCartID, cartID).
		Logger()

	id, err := uuid.Parse(cartID)
	if err != nil {
		err = fmt.Errorf("failed parsing cartId=%s with error=%w", cartID, inErrors.ErrInvalidCartID)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.pool.Query(c, listAttemptsByCart, id, limit)
	if err != nil {
		err = fmt.Errorf("failed querying checkout attempts with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	attempts, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		err = fmt.Errorf("failed scanning checkout attempts with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Debug().Int("attempts", len(attempts)).Msg("listed checkout attempts")
	return attempts, nil
}

func scanAttempt(row pgx.CollectableRow) (checkout.Attempt, error) {
	var (
		attempt    checkout.Attempt
		cartID     uuid.UUID
		state      string
		totalPrice pgtype.Numeric
		failures   []byte
		createdAt  time.Time
	)
	err := row.Scan(
		&attempt.ID,
		&cartID,
		&state,
		&attempt.ItemCount,
		&attempt.TotalItems,
		&totalPrice,
		&attempt.DraftOrderIDs,
		&failures,
		&attempt.RedirectURL,
		&attempt.Error,
		&createdAt,
	)
	if err != nil {
		return checkout.Attempt{}, err
	}
	if err = json.Unmarshal(failures, &attempt.PartialFailures); err != nil {
		return checkout.Attempt{}, err
	}
	attempt.CartID = cartID.String()
	attempt.State = checkout.State(state)
	if totalPrice.Valid && totalPrice.Int != nil {
		attempt.TotalPrice = decimal.NewFromBigInt(totalPrice.Int, totalPrice.Exp)
	}
	attempt.CreatedAt = createdAt
	return attempt, nil
}
