package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres
func Init() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	// Core identity tables
	ensureProfilesTable()
	ensureUsersTable()

	// Errand domain
	ensureTasksTable()
	ensureTaskAcceptancesTable()
	ensureCompletedTasksTable()

	// Chat domain
	ensureConversationsTable()
	ensureMessagesTable()
}

// ensureProfilesTable creates profiles if missing
func ensureProfilesTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            student_id TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            college TEXT,
            major TEXT,
            graduation_year TEXT,
            avatar_url TEXT,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		log.Printf("failed to create profiles table: %v", err)
	}
}

// ensureUsersTable holds login credentials keyed by campus student id
func ensureUsersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            student_id TEXT PRIMARY KEY,
            password_hash TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		log.Printf("failed to create users table: %v", err)
	}
}

func ensureTasksTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS tasks (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            type TEXT NOT NULL CHECK (type IN ('delivery', 'study', 'tutor')),
            title TEXT NOT NULL,
            price TEXT NOT NULL,
            description TEXT,
            publisher_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'active'
                CHECK (status IN ('active', 'accepted', 'completed', 'revoked')),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);
    `)
	if err != nil {
		log.Printf("failed to create tasks table: %v", err)
	}
}

// ensureTaskAcceptancesTable enforces at most one acceptance per (task, acceptor)
func ensureTaskAcceptancesTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS task_acceptances (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
            acceptor_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'active'
                CHECK (status IN ('active', 'waiting_confirmation', 'waiting_receipt', 'completed')),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (task_id, acceptor_id)
        );
        CREATE INDEX IF NOT EXISTS idx_acceptances_task ON task_acceptances(task_id);
    `)
	if err != nil {
		log.Printf("failed to create task_acceptances table: %v", err)
	}
}

// ensureCompletedTasksTable marks tasks excluded from the open listing
func ensureCompletedTasksTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS completed_tasks (
            task_id UUID PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
            completed_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		log.Printf("failed to create completed_tasks table: %v", err)
	}
}

// ensureConversationsTable creates conversations plus the unique indexes that
// back the one-row-per-(task, participant pair) invariant. Participant ids are
// stored sorted (publisher_id < acceptor_id when both present), so a single
// unique index on (task_id, publisher_id, acceptor_id) covers the pair
// regardless of which side created the row. Open inquiries (acceptor_id NULL)
// get their own partial index since NULLs never collide in the regular one.
func ensureConversationsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
            publisher_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            acceptor_id UUID NULL REFERENCES profiles(id) ON DELETE CASCADE,
            last_message_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE UNIQUE INDEX IF NOT EXISTS uq_conversations_task_pair
            ON conversations(task_id, publisher_id, acceptor_id)
            WHERE acceptor_id IS NOT NULL;
        CREATE UNIQUE INDEX IF NOT EXISTS uq_conversations_task_inquiry
            ON conversations(task_id, publisher_id)
            WHERE acceptor_id IS NULL;
        CREATE INDEX IF NOT EXISTS idx_conversations_publisher ON conversations(publisher_id);
        CREATE INDEX IF NOT EXISTS idx_conversations_acceptor ON conversations(acceptor_id);
    `)
	if err != nil {
		log.Printf("failed to create conversations table: %v", err)
	}
}

func ensureMessagesTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            receiver_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            content TEXT NOT NULL DEFAULT '',
            message_type TEXT NOT NULL DEFAULT 'user' CHECK (message_type IN ('user', 'system')),
            sys_template TEXT,
            sys_actor_role TEXT CHECK (sys_actor_role IN ('publisher', 'acceptor')),
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages(receiver_id) WHERE is_read = FALSE;
    `)
	if err != nil {
		log.Printf("failed to create messages table: %v", err)
	}
}
