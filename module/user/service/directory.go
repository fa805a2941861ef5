package service

import (
	"context"
	"errors"
	"slices"
	"sync"

	"ChatCore/module/user/model"
	"ChatCore/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory is the read side of the user and contact service.
type Directory interface {
	Exists(ctx context.Context, username string) (bool, error)
	// GetProfile returns errs.ErrNotFound for unknown users.
	GetProfile(ctx context.Context, username string) (*model.Profile, error)
}

// PgDirectory reads
//
//	users(username text primary key)
//	contacts(username text, contact text, primary key (username, contact))
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

const (
	sqlUserExists = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	sqlContacts   = `SELECT contact FROM contacts WHERE username = $1 ORDER BY contact`
	sqlUser       = `SELECT username FROM users WHERE username = $1`
)

func (d *PgDirectory) Exists(ctx context.Context, username string) (bool, error) {
	if d == nil || d.pool == nil {
		return false, errs.ErrInternal.WrapMsg("PgDirectory: nil pool")
	}
	var ok bool
	if err := d.pool.QueryRow(ctx, sqlUserExists, username).Scan(&ok); err != nil {
		return false, errs.WrapMsg(err, "query user", "username", username)
	}
	return ok, nil
}

func (d *PgDirectory) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	if d == nil || d.pool == nil {
		return nil, errs.ErrInternal.WrapMsg("PgDirectory: nil pool")
	}
	var name string
	err := d.pool.QueryRow(ctx, sqlUser, username).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "username", username)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query user", "username", username)
	}

	rows, err := d.pool.Query(ctx, sqlContacts, username)
	if err != nil {
		return nil, errs.WrapMsg(err, "query contacts", "username", username)
	}
	contacts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errs.WrapMsg(err, "scan contacts", "username", username)
	}
	return &model.Profile{Username: name, ContactList: contacts}, nil
}

// MemDirectory is an in-process directory for tests and single-node demos.
type MemDirectory struct {
	mu       sync.RWMutex
	contacts map[string][]string
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{contacts: make(map[string][]string)}
}

// AddUser registers username with the given contacts, replacing earlier ones.
func (d *MemDirectory) AddUser(username string, contacts ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[username] = slices.Clone(contacts)
}

// Connect records a mutual contact edge, registering both users if needed.
func (d *MemDirectory) Connect(a, b string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.contacts[a], b) {
		d.contacts[a] = append(d.contacts[a], b)
	}
	if !slices.Contains(d.contacts[b], a) {
		d.contacts[b] = append(d.contacts[b], a)
	}
}

func (d *MemDirectory) Exists(_ context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.contacts[username]
	return ok, nil
}

func (d *MemDirectory) GetProfile(_ context.Context, username string) (*model.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[username]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "username", username)
	}
	return &model.Profile{Username: username, ContactList: slices.Clone(c)}, nil
}
