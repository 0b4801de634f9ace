package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres bundles the pgx-backed implementation of every store interface.
type Postgres struct {
	Conversations Conversations
	Messages      Messages
	Acceptances   Acceptances
	Tasks         Tasks
	Profiles      Profiles
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		Conversations: &pgConversations{pool: pool},
		Messages:      &pgMessages{pool: pool},
		Acceptances:   &pgAcceptances{pool: pool},
		Tasks:         &pgTasks{pool: pool},
		Profiles:      &pgProfiles{pool: pool},
	}
}

type pgConversations struct{ pool *pgxpool.Pool }
type pgMessages struct{ pool *pgxpool.Pool }
type pgAcceptances struct{ pool *pgxpool.Pool }
type pgTasks struct{ pool *pgxpool.Pool }
type pgProfiles struct{ pool *pgxpool.Pool }

// mapInsertErr translates unique violations into ErrConflict.
func mapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func mapRowErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
