// Package memory keeps what the world remembers about finished conversations:
// per-character memories, session digests and location information, in sqlite.
package memory

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const (
	MinSignificance = 1
	MaxSignificance = 5
)

type Memory struct {
	Id           string
	Owner        string
	Content      string
	Significance int
	CreatedAt    time.Time
}

type Session struct {
	Id        string
	Content   string
	CreatedAt time.Time
}

// Information is one remembered conversation at a location.
type Information struct {
	Id           string
	Location     string
	NPCNames     []string
	PlayerNames  []string
	Lines        []string
	Significance int
	CreatedAt    time.Time
}

type Store struct {
	db *sql.DB
}

// Open creates the database at path if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != `` {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, `memory: creating database directory`)
		}
	}

	db, err := sql.Open(`sqlite`, path)
	if err != nil {
		return nil, errors.Wrap(err, `memory: opening database`)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, `memory: enabling WAL mode`)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, `memory: creating schema`)
	}

	mudlog.Info("memory", "path", path, "info", "store opened")

	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id           TEXT PRIMARY KEY,
			owner        TEXT NOT NULL,
			content      TEXT NOT NULL,
			significance INTEGER NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS information (
			id           TEXT PRIMARY KEY,
			location     TEXT NOT NULL,
			npc_names    TEXT NOT NULL,
			player_names TEXT NOT NULL,
			lines        TEXT NOT NULL,
			significance INTEGER NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_information_location ON information(location);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ProcessInformation records a remembered conversation against its location.
func (s *Store) ProcessInformation(ctx context.Context, source conversations.InformationSource) error {
	lines := make([]string, 0, len(source.Messages))
	for _, msg := range source.Messages {
		lines = append(lines, msg.Content)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO information (id, location, npc_names, player_names, lines, significance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		strings.ToLower(source.LocationName),
		joinList(source.NPCNames),
		joinList(source.PlayerNames),
		strings.Join(lines, "\n"),
		clampSignificance(source.Significance),
		now(),
	)
	if err != nil {
		return errors.Wrap(err, `memory: inserting information`)
	}

	mudlog.Debug("memory", "location", source.LocationName, "npcs", strings.Join(source.NPCNames, ","), "significance", source.Significance)
	return nil
}

func (s *Store) FeedSession(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == `` {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, content, created_at) VALUES (?, ?, ?)`,
		uuid.NewString(), text, now())
	return errors.Wrap(err, `memory: inserting session`)
}

func (s *Store) AddMemory(ctx context.Context, owner string, content string, significance int) error {
	owner = strings.TrimSpace(owner)
	content = strings.TrimSpace(content)
	if owner == `` || content == `` {
		return errors.New(`memory: owner and content are required`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, owner, content, significance, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), strings.ToLower(owner), content, clampSignificance(significance), now())
	if err != nil {
		return errors.Wrap(err, `memory: inserting memory`)
	}

	mudlog.Debug("memory", "owner", owner, "significance", significance)
	return nil
}

// Memories returns the owner's most recent memories, oldest first.
// A limit of 0 or less returns all of them.
func (s *Store) Memories(ctx context.Context, owner string, limit int) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, content, significance, created_at FROM (
			SELECT rowid, id, owner, content, significance, created_at
			FROM memories
			WHERE owner = ?
			ORDER BY rowid DESC
			LIMIT ?
		) ORDER BY rowid ASC`,
		strings.ToLower(strings.TrimSpace(owner)), sqlLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, `memory: querying memories`)
	}
	defer rows.Close()

	out := []Memory{}
	for rows.Next() {
		var m Memory
		var created string
		if err := rows.Scan(&m.Id, &m.Owner, &m.Content, &m.Significance, &created); err != nil {
			return nil, errors.Wrap(err, `memory: scanning memory`)
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), `memory: reading memories`)
}

// Sessions returns the most recent session digests, oldest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, created_at FROM (
			SELECT rowid, id, content, created_at FROM sessions ORDER BY rowid DESC LIMIT ?
		) ORDER BY rowid ASC`, sqlLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, `memory: querying sessions`)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var sess Session
		var created string
		if err := rows.Scan(&sess.Id, &sess.Content, &created); err != nil {
			return nil, errors.Wrap(err, `memory: scanning session`)
		}
		sess.CreatedAt = parseTime(created)
		out = append(out, sess)
	}
	return out, errors.Wrap(rows.Err(), `memory: reading sessions`)
}

// Information returns everything remembered at a location, oldest first.
func (s *Store) Information(ctx context.Context, location string) ([]Information, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location, npc_names, player_names, lines, significance, created_at
		FROM information
		WHERE location = ?
		ORDER BY rowid ASC`, strings.ToLower(location))
	if err != nil {
		return nil, errors.Wrap(err, `memory: querying information`)
	}
	defer rows.Close()

	out := []Information{}
	for rows.Next() {
		var info Information
		var npcs, players, lines, created string
		if err := rows.Scan(&info.Id, &info.Location, &npcs, &players, &lines, &info.Significance, &created); err != nil {
			return nil, errors.Wrap(err, `memory: scanning information`)
		}
		info.NPCNames = splitList(npcs)
		info.PlayerNames = splitList(players)
		if lines != `` {
			info.Lines = strings.Split(lines, "\n")
		}
		info.CreatedAt = parseTime(created)
		out = append(out, info)
	}
	return out, errors.Wrap(rows.Err(), `memory: reading information`)
}

func clampSignificance(v int) int {
	if v < MinSignificance {
		return MinSignificance
	}
	if v > MaxSignificance {
		return MaxSignificance
	}
	return v
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func joinList(names []string) string {
	return strings.Join(names, "\x1f")
}

func splitList(s string) []string {
	if s == `` {
		return nil
	}
	return strings.Split(s, "\x1f")
}
