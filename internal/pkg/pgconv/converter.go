package pgconv

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var ErrUnboundedRange = errors.New("tstzrange must have finite lower and upper bounds")

func StringPtrFromPgtype(pt pgtype.Text) *string {
	if !pt.Valid {
		return nil
	}
	return &pt.String
}

func StringPtrToPgtype(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func TimeToPgtype(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// HalfOpenRange encodes [start, end) as a tstzrange value.
func HalfOpenRange(start, end time.Time) pgtype.Range[pgtype.Timestamptz] {
	return pgtype.Range[pgtype.Timestamptz]{
		Lower:     TimeToPgtype(start),
		Upper:     TimeToPgtype(end),
		LowerType: pgtype.Inclusive,
		UpperType: pgtype.Exclusive,
		Valid:     true,
	}
}

// RangeBounds decodes a tstzrange into UTC start and end.
func RangeBounds(r pgtype.Range[pgtype.Timestamptz]) (time.Time, time.Time, error) {
	if !r.Valid || r.LowerType == pgtype.Unbounded || r.UpperType == pgtype.Unbounded ||
		!r.Lower.Valid || !r.Upper.Valid {
		return time.Time{}, time.Time{}, ErrUnboundedRange
	}
	return r.Lower.Time.UTC(), r.Upper.Time.UTC(), nil
}

// IsNoRows checks if the error is a "no rows" error from either sql or pgx
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
